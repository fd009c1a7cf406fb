package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func emailArg(in *structpb.Struct) (string, error) {
	email := strings.TrimSpace(in.GetFields()["email"].GetStringValue())
	if email == "" {
		return "", status.Error(codes.InvalidArgument, "email is required")
	}
	return email, nil
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *GRPCServer) mapError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorEncryptionDisabled):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	s.logger.Error(ctx, err.Error(), "caller", callerService(ctx))
	return status.Error(codes.Internal, "internal error")
}

func (s *GRPCServer) ConsumeCreditOrCharge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	email, err := emailArg(in)
	if err != nil {
		return nil, err
	}

	d := s.ledger.ConsumeCreditOrCharge(ctx, email)
	s.logger.Info(ctx, "billing decision", "caller", callerService(ctx),
		"email", common.MaskEmail(email), "charge", d.ShouldCharge)

	return toStruct(map[string]any{
		"shouldCharge":     d.ShouldCharge,
		"chargeAmount":     d.ChargeAmount,
		"remainingCredits": d.RemainingCredits,
	})
}

func (s *GRPCServer) ReferralStats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	email, err := emailArg(in)
	if err != nil {
		return nil, err
	}

	st, err := s.ledger.Stats(ctx, email)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}

	uses := make([]any, 0, len(st.RecentUses))
	for _, u := range st.RecentUses {
		uses = append(uses, map[string]any{
			"email":         u.NewUserEmailMasked,
			"paymentAmount": u.PaymentAmount,
			"rewardCredits": u.RewardCredits,
			"usedAt":        u.UsedAt.UTC().Format(time.RFC3339),
		})
	}
	history := make([]any, 0, len(st.History))
	for _, h := range st.History {
		history = append(history, map[string]any{
			"action":       h.Action,
			"delta":        h.Delta,
			"balanceAfter": h.BalanceAfter,
			"reason":       h.Reason,
			"createdAt":    h.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	r := st.Referral
	return toStruct(map[string]any{
		"code":           r.Code,
		"link":           r.Link,
		"balance":        r.Balance,
		"totalReferrals": r.TotalReferrals,
		"totalEarned":    r.TotalEarned,
		"recentUses":     uses,
		"history":        history,
	})
}

func (s *GRPCServer) GlobalStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	g, err := s.ledger.GlobalStats(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}

	top := make([]any, 0, len(g.Top))
	for _, t := range g.Top {
		top = append(top, map[string]any{
			"email":          t.Email,
			"code":           t.Code,
			"totalReferrals": t.TotalReferrals,
			"totalEarned":    t.TotalEarned,
			"balance":        t.Balance,
		})
	}

	out := map[string]any{"top": top}
	if t := g.Totals; t != nil {
		out["totalCodes"] = t.TotalCodes
		out["totalUses"] = t.TotalUses
		out["totalEarned"] = t.TotalEarned
		out["outstandingCredit"] = t.OutstandingCredit
	}
	return toStruct(out)
}

func (s *GRPCServer) Reconcile(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	report, err := s.audit.Reconcile(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	if s.audit.ExportEnabled() {
		if err := s.audit.Export(ctx, report); err != nil {
			s.logger.Warn(ctx, "audit export failed", "id", report.ID, "error", err)
		}
	}
	return reportStruct(report)
}

func reportStruct(r *services.AuditReport) (*structpb.Struct, error) {
	drifted := make([]any, 0, len(r.Drifted))
	for _, d := range r.Drifted {
		drifted = append(drifted, map[string]any{
			"ownerEmailIndex": d.OwnerEmailIndex,
			"balance":         d.Balance,
			"earned":          d.Earned,
			"used":            d.Used,
			"expected":        d.Expected,
		})
	}
	return toStruct(map[string]any{
		"id":          r.ID,
		"generatedAt": r.GeneratedAt.UTC().Format(time.RFC3339),
		"records":     r.Records,
		"consistent":  r.Consistent(),
		"drifted":     drifted,
		"objectKey":   r.ObjectKey,
		"downloadUrl": r.DownloadURL,
	})
}
