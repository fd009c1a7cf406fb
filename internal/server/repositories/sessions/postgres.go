// Package sessions persists browser sessions by token hash.
package sessions

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

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	query :=
		`INSERT INTO sessions (identity_id, is_admin, token_hash, csrf_hash, expires_at, ip_address, user_agent)
		 VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6, $7)
		 RETURNING id, is_active, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		s.IdentityID, s.IsAdmin, s.TokenHash, s.CSRFHash, s.ExpiresAt, s.IPAddress, s.UserAgent,
	).Scan(&s.ID, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// FindByTokenHash loads a session together with the owning identity's
// billing fields. Admin sessions have no identity and come back with empty
// identity fields.
func (r *PostgresRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*models.SessionView, error) {
	query :=
		`SELECT s.id, COALESCE(s.identity_id::text, ''), s.is_admin, s.token_hash, s.csrf_hash,
		        s.expires_at, COALESCE(s.ip_address, ''), COALESCE(s.user_agent, ''), s.is_active,
		        s.created_at, s.revoked_at,
		        COALESCE(i.is_active, FALSE), COALESCE(i.payment_status, ''),
		        i.email_enc, i.name_enc, COALESCE(i.license_key, '')
		 FROM sessions s
		 LEFT JOIN identities i ON i.id = s.identity_id
		 WHERE s.token_hash = $1
		 `

	v := &models.SessionView{}
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&v.ID, &v.IdentityID, &v.IsAdmin, &v.TokenHash, &v.CSRFHash,
		&v.ExpiresAt, &v.IPAddress, &v.UserAgent, &v.IsActive,
		&v.CreatedAt, &revokedAt,
		&v.IdentityActive, &v.PaymentStatus,
		&v.EmailEnc, &v.NameEnc, &v.LicenseKey,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		v.RevokedAt = &t
	}
	return v, nil
}

// Revoke deactivates an active session. It reports false when nothing was
// active under that hash.
func (r *PostgresRepository) Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	query :=
		`UPDATE sessions SET is_active = FALSE, revoked_at = $2
		 WHERE token_hash = $1 AND is_active
		 `
	res, err := r.db.ExecContext(ctx, query, tokenHash, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	query :=
		`DELETE FROM sessions
		 WHERE expires_at < $1
		 `
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
