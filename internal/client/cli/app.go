package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/client/client"
	"github.com/dmitrijs2005/profitpal/internal/client/config"
	"github.com/dmitrijs2005/profitpal/internal/client/models"
	"github.com/dmitrijs2005/profitpal/internal/client/repositories/journal"
	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/auth"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// initDatabase and newLedgerClient are test seams.
var (
	initDatabase    = client.InitDatabase
	newLedgerClient = func(addr string, mint client.TokenSource) (client.Client, error) {
		c, err := client.NewGRPCClient(addr, mint)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
)

type App struct {
	config  *config.Config
	ledger  client.Client
	journal journal.Repository
	db      *sql.DB
	logger  logging.Logger
	out     io.Writer
	in      io.Reader
	now     func() time.Time

	secret []byte

	mu         sync.Mutex
	mode       Mode
	lastReport *models.AuditReport
}

// NewApp opens the journal and dials the Ledger endpoint. Tokens are minted
// from secret on demand; the App owns the slice and wipes it on exit.
func NewApp(ctx context.Context, c *config.Config, secret []byte) (*App, error) {
	db, err := initDatabase(ctx, c.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}

	a := &App{
		config:  c,
		journal: journal.NewSQLiteRepository(db),
		db:      db,
		logger:  logging.NewZerologConsole(os.Stderr, "warn").With("module", "ppctl"),
		out:     os.Stdout,
		in:      os.Stdin,
		now:     time.Now,
		secret:  secret,
	}

	mint := func() (string, error) {
		return auth.GenerateToken(c.ServiceName, a.secret, c.TokenValidity)
	}

	a.ledger, err = newLedgerClient(c.ServerEndpointAddr, mint)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dial ledger: %w", err)
	}

	return a, nil
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.logger.Warn(ctx, "connection state changed", "mode", string(mode))
	}
}

func (a *App) getStatus() string {
	if m := a.Mode(); m != "" {
		return fmt.Sprintf("(%s) ", m)
	}
	return ""
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := a.ledger.Ping(ctx); err != nil {
		a.setMode(ctx, ModeOffline)
		return
	}
	a.setMode(ctx, ModeOnline)
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Run starts the watcher and the REPL, then releases resources.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.Close()

	fmt.Fprintln(a.out, "ProfitPal ledger console (type 'help' for commands)")
	a.checkOnline(ctx)

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.in))
}

func (a *App) Close() {
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	common.WipeByteArray(a.secret)
}
