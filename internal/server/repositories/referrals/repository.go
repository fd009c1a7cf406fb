package referrals

import (
	"context"

	"github.com/dmitrijs2005/profitpal/internal/server/models"
)

type Repository interface {
	FindByOwner(ctx context.Context, ownerIndex string) (*models.Referral, error)
	LockByOwner(ctx context.Context, ownerIndex string) (*models.Referral, error)
	LockByCode(ctx context.Context, code string) (*models.Referral, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Insert(ctx context.Context, ref *models.Referral) (bool, error)
	InsertUse(ctx context.Context, use *models.ReferralUse) (bool, error)
	Credit(ctx context.Context, ownerIndex string, reward int) (int, error)
	Debit(ctx context.Context, ownerIndex string) (int, error)
	AppendHistory(ctx context.Context, entry *models.CreditEntry) error
	RecentUses(ctx context.Context, code string, limit int) ([]*models.ReferralUse, error)
	History(ctx context.Context, ownerIndex string, limit int) ([]*models.CreditEntry, error)
	Totals(ctx context.Context) (*models.ReferralTotals, error)
	Top(ctx context.Context, limit int) ([]*models.Referral, error)
	HistorySums(ctx context.Context) ([]*models.HistorySum, error)
}
