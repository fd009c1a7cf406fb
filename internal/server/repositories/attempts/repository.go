package attempts

import (
	"context"

	"github.com/dmitrijs2005/profitpal/internal/server/models"
)

type Repository interface {
	Record(ctx context.Context, a *models.LoginAttempt) error
}
