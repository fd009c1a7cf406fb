package client

import (
	"context"

	"github.com/dmitrijs2005/profitpal/internal/client/models"
)

// Client is the set of Ledger operations the console uses.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	ConsumeCreditOrCharge(ctx context.Context, email string) (*models.BillingDecision, error)
	ReferralStats(ctx context.Context, email string) (*models.ReferralStats, error)
	GlobalStats(ctx context.Context) (*models.GlobalStats, error)
	Reconcile(ctx context.Context) (*models.AuditReport, error)
}
