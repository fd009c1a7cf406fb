// Package attempts appends credential-check outcomes to the audit log.
package attempts

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/profitpal/internal/dbx"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Record(ctx context.Context, a *models.LoginAttempt) error {
	query :=
		`INSERT INTO login_attempts (email_index, email_masked, license_prefix, success, ip_address, user_agent, attempted_at)
		 VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6, $7)
		 `
	_, err := r.db.ExecContext(ctx, query,
		a.EmailIndex, a.EmailMasked, a.LicensePrefix, a.Success, a.IPAddress, a.UserAgent, a.AttemptedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
