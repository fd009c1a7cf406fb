package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) (*models.Session, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.SessionView, error)
	Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
