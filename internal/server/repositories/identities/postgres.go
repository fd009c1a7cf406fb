// Package identities stores encrypted identity rows in PostgreSQL.
package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/dbx"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const identityColumns = `id, email_enc, COALESCE(email_index, ''), name_enc, license_key,
		 COALESCE(stripe_customer_id, ''), COALESCE(payment_status, ''),
		 is_active, created_at, last_login, login_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (*models.Identity, error) {
	i := &models.Identity{}
	var lastLogin sql.NullTime
	if err := row.Scan(&i.ID, &i.EmailEnc, &i.EmailIndex, &i.NameEnc, &i.LicenseKey,
		&i.StripeCustomerID, &i.PaymentStatus, &i.IsActive, &i.CreatedAt, &lastLogin, &i.LoginCount); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		i.LastLogin = &t
	}
	return i, nil
}

// Create inserts an identity. A unique violation (active email index or
// license) is reported as common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query :=
		`INSERT INTO identities (email_enc, email_index, name_enc, license_key, stripe_customer_id, payment_status)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		 RETURNING id, is_active, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		identity.EmailEnc, identity.EmailIndex, identity.NameEnc, identity.LicenseKey,
		identity.StripeCustomerID, identity.PaymentStatus,
	).Scan(&identity.ID, &identity.IsActive, &identity.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return identity, nil
}

func (r *PostgresRepository) FindActiveByIndex(ctx context.Context, emailIndex string) ([]*models.Identity, error) {
	query :=
		`SELECT ` + identityColumns + ` FROM identities
		 WHERE email_index = $1 AND is_active
		 `
	return r.list(ctx, query, emailIndex)
}

// ListActive returns every active row. It backs the decrypt-and-compare
// fallback for rows whose index is missing or was computed under another key.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*models.Identity, error) {
	query :=
		`SELECT ` + identityColumns + ` FROM identities
		 WHERE is_active
		 ORDER BY created_at
		 `
	return r.list(ctx, query)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Identity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) SetEmailIndex(ctx context.Context, id string, emailIndex string) error {
	query :=
		`UPDATE identities SET email_index = $2
		 WHERE id = $1
		 `
	if _, err := r.db.ExecContext(ctx, query, id, emailIndex); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LicenseExists(ctx context.Context, license string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM identities WHERE license_key = $1)
		 `
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, license).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Deactivate clears the active flag. It returns common.ErrorNotFound when no
// row has that id.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	query :=
		`UPDATE identities SET is_active = FALSE
		 WHERE id = $1
		 `
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	query :=
		`UPDATE identities SET last_login = $2, login_count = login_count + 1
		 WHERE id = $1
		 `
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context, now time.Time, dayStart time.Time) (*models.AuthStats, error) {
	query :=
		`SELECT
		   (SELECT COUNT(*) FROM identities WHERE is_active),
		   (SELECT COUNT(*) FROM identities),
		   (SELECT COUNT(*) FROM sessions WHERE is_active AND expires_at > $1),
		   (SELECT COUNT(*) FROM login_attempts WHERE success AND attempted_at >= $2)
		 `
	s := &models.AuthStats{}
	err := r.db.QueryRowContext(ctx, query, now, dayStart).
		Scan(&s.ActiveIdentities, &s.TotalIdentities, &s.ActiveSessions, &s.LoginsToday)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}
