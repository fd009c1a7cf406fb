package journal

import (
	"context"

	"github.com/dmitrijs2005/profitpal/internal/client/models"
)

type Repository interface {
	Append(ctx context.Context, e *models.JournalEntry) error
	Recent(ctx context.Context, limit int) ([]*models.JournalEntry, error)
}
