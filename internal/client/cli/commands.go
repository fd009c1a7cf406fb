package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/profitpal/internal/client/models"
	"github.com/dmitrijs2005/profitpal/internal/filex"
	"github.com/dmitrijs2005/profitpal/internal/netx"
)

var (
	errNoReport = errors.New("no exported report; run reconcile first")

	downloadFn = netx.DownloadPresignedURL
	ensureDir  = filex.EnsureSubdDir
)

// record writes the command outcome to the journal. Journal failures never
// fail the command.
func (a *App) record(ctx context.Context, cmd, args, output string, err error) {
	e := &models.JournalEntry{
		Command:    cmd,
		Args:       args,
		OK:         err == nil,
		Output:     output,
		ExecutedAt: a.now(),
	}
	if err != nil {
		e.Output = err.Error()
	}
	if jerr := a.journal.Append(ctx, e); jerr != nil {
		a.logger.Warn(ctx, "journal append failed", "command", cmd, "error", jerr)
	}
}

func (a *App) report(ctx context.Context, cmd, args string, err error, format func(b *strings.Builder)) error {
	if err != nil {
		a.record(ctx, cmd, args, "", err)
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}
	var b strings.Builder
	format(&b)
	a.record(ctx, cmd, args, b.String(), nil)
	fmt.Fprint(a.out, b.String())
	return nil
}

func (a *App) Charge(ctx context.Context, email string) error {
	d, err := a.ledger.ConsumeCreditOrCharge(ctx, email)
	return a.report(ctx, "charge", email, err, func(b *strings.Builder) {
		if d.ShouldCharge {
			fmt.Fprintf(b, "CHARGE $%.2f (credits left: %d)\n", d.ChargeAmount, d.RemainingCredits)
			return
		}
		fmt.Fprintf(b, "FREE month, credit used (credits left: %d)\n", d.RemainingCredits)
	})
}

func (a *App) Stats(ctx context.Context, email string) error {
	st, err := a.ledger.ReferralStats(ctx, email)
	return a.report(ctx, "stats", email, err, func(b *strings.Builder) {
		fmt.Fprintf(b, "Code:      %s\n", st.Code)
		fmt.Fprintf(b, "Link:      %s\n", st.Link)
		fmt.Fprintf(b, "Balance:   %d\n", st.Balance)
		fmt.Fprintf(b, "Referrals: %d (earned %d)\n", st.TotalReferrals, st.TotalEarned)

		if len(st.RecentUses) > 0 {
			b.WriteString("Recent referrals:\n")
			tw := tabwriter.NewWriter(b, 0, 4, 2, ' ', 0)
			for _, u := range st.RecentUses {
				fmt.Fprintf(tw, "  %s\t$%.2f\t+%d\t%s\n", u.Email, u.PaymentAmount, u.RewardCredits, u.UsedAt)
			}
			tw.Flush()
		}
		if len(st.History) > 0 {
			b.WriteString("History:\n")
			tw := tabwriter.NewWriter(b, 0, 4, 2, ' ', 0)
			for _, h := range st.History {
				fmt.Fprintf(tw, "  %s\t%+d\t=%d\t%s\t%s\n", h.Action, h.Delta, h.BalanceAfter, h.Reason, h.CreatedAt)
			}
			tw.Flush()
		}
	})
}

func (a *App) Global(ctx context.Context) error {
	g, err := a.ledger.GlobalStats(ctx)
	return a.report(ctx, "global", "", err, func(b *strings.Builder) {
		fmt.Fprintf(b, "Codes: %d  Uses: %d  Earned: %d  Outstanding: %d\n",
			g.TotalCodes, g.TotalUses, g.TotalEarned, g.OutstandingCredit)
		if len(g.Top) == 0 {
			return
		}
		b.WriteString("Top referrers:\n")
		tw := tabwriter.NewWriter(b, 0, 4, 2, ' ', 0)
		for i, t := range g.Top {
			fmt.Fprintf(tw, "  %d.\t%s\t%s\t%d referrals\t%d earned\t%d balance\n",
				i+1, t.Email, t.Code, t.TotalReferrals, t.TotalEarned, t.Balance)
		}
		tw.Flush()
	})
}

func (a *App) Reconcile(ctx context.Context) error {
	r, err := a.ledger.Reconcile(ctx)
	if err == nil {
		a.mu.Lock()
		a.lastReport = r
		a.mu.Unlock()
	}
	return a.report(ctx, "reconcile", "", err, func(b *strings.Builder) {
		state := "consistent"
		if !r.Consistent {
			state = fmt.Sprintf("%d drifted", len(r.Drifted))
		}
		fmt.Fprintf(b, "Report %s: %d records, %s\n", r.ID, r.Records, state)
		for _, d := range r.Drifted {
			fmt.Fprintf(b, "  %s balance=%d expected=%d (earned %d, used %d)\n",
				d.OwnerEmailIndex, d.Balance, d.Expected, d.Earned, d.Used)
		}
		if r.ObjectKey != "" {
			fmt.Fprintf(b, "Exported to %s\n", r.ObjectKey)
		}
	})
}

// Download saves the last reconcile export into the reports directory.
func (a *App) Download(ctx context.Context) error {
	a.mu.Lock()
	r := a.lastReport
	a.mu.Unlock()

	var (
		path string
		err  error
	)
	if r == nil || r.DownloadURL == "" {
		err = errNoReport
	} else {
		var dir string
		dir, err = ensureDir(a.config.ReportsDir)
		if err == nil {
			path = filex.ReportPath(dir, r.ID)
			_, err = downloadFn(ctx, r.DownloadURL, path)
		}
	}

	args := ""
	if r != nil {
		args = r.ID
	}
	return a.report(ctx, "download", args, err, func(b *strings.Builder) {
		fmt.Fprintf(b, "Saved %s\n", path)
	})
}

// History prints the newest n journal entries. It is not itself journaled.
func (a *App) History(ctx context.Context, n int) error {
	entries, err := a.journal.Recent(ctx, n)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No commands yet")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		state := "ok"
		if !e.OK {
			state = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s %s\t%s\n", e.ExecutedAt.Local().Format("2006-01-02 15:04:05"),
			e.Command, e.Args, state)
	}
	return tw.Flush()
}
