package identities

import (
	"context"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	FindActiveByIndex(ctx context.Context, emailIndex string) ([]*models.Identity, error)
	ListActive(ctx context.Context) ([]*models.Identity, error)
	SetEmailIndex(ctx context.Context, id string, emailIndex string) error
	LicenseExists(ctx context.Context, license string) (bool, error)
	Deactivate(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	Stats(ctx context.Context, now time.Time, dayStart time.Time) (*models.AuthStats, error)
}
