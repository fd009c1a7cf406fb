// Package referrals stores referral codes, their uses and the credit
// history ledger.
package referrals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const referralColumns = `owner_email_index, owner_email_enc, referral_code, referral_link,
		 balance, total_referrals, total_earned, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanReferral(row scanner) (*models.Referral, error) {
	ref := &models.Referral{}
	err := row.Scan(&ref.OwnerEmailIndex, &ref.OwnerEmailEnc, &ref.Code, &ref.Link,
		&ref.Balance, &ref.TotalReferrals, &ref.TotalEarned, &ref.CreatedAt, &ref.UpdatedAt)
	return ref, err
}

func (r *PostgresRepository) one(ctx context.Context, query string, arg any) (*models.Referral, error) {
	ref, err := scanReferral(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ref, nil
}

func (r *PostgresRepository) FindByOwner(ctx context.Context, ownerIndex string) (*models.Referral, error) {
	query :=
		`SELECT ` + referralColumns + ` FROM referrals
		 WHERE owner_email_index = $1
		 `
	return r.one(ctx, query, ownerIndex)
}

// LockByOwner reads the owner's row with FOR UPDATE. It must run inside a
// transaction; the lock serializes every balance change for that owner.
func (r *PostgresRepository) LockByOwner(ctx context.Context, ownerIndex string) (*models.Referral, error) {
	query :=
		`SELECT ` + referralColumns + ` FROM referrals
		 WHERE owner_email_index = $1
		 FOR UPDATE
		 `
	return r.one(ctx, query, ownerIndex)
}

// LockByCode is LockByOwner addressed by referral code.
func (r *PostgresRepository) LockByCode(ctx context.Context, code string) (*models.Referral, error) {
	query :=
		`SELECT ` + referralColumns + ` FROM referrals
		 WHERE referral_code = $1
		 FOR UPDATE
		 `
	return r.one(ctx, query, code)
}

func (r *PostgresRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM referrals WHERE referral_code = $1)
		 `
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Insert stores a zero-balance record. It reports false, without error, when
// the owner or the code already exists.
func (r *PostgresRepository) Insert(ctx context.Context, ref *models.Referral) (bool, error) {
	query :=
		`INSERT INTO referrals (owner_email_index, owner_email_enc, referral_code, referral_link)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT DO NOTHING
		 RETURNING created_at, updated_at
		 `
	err := r.db.QueryRowContext(ctx, query, ref.OwnerEmailIndex, ref.OwnerEmailEnc, ref.Code, ref.Link).
		Scan(&ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

// InsertUse records a redemption. It reports false when the (code, new user)
// pair was recorded before.
func (r *PostgresRepository) InsertUse(ctx context.Context, use *models.ReferralUse) (bool, error) {
	query :=
		`INSERT INTO referral_uses (referral_code, referrer_email_index, new_user_email_index,
		                            new_user_email_masked, payment_amount, reward_credits)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (referral_code, new_user_email_index) DO NOTHING
		 `
	res, err := r.db.ExecContext(ctx, query, use.Code, use.ReferrerEmailIndex, use.NewUserEmailIndex,
		use.NewUserEmailMasked, use.PaymentAmount, use.RewardCredits)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// Credit adds reward to the balance and lifetime counters and returns the
// new balance.
func (r *PostgresRepository) Credit(ctx context.Context, ownerIndex string, reward int) (int, error) {
	query :=
		`UPDATE referrals
		 SET balance = balance + $2,
		     total_referrals = total_referrals + 1,
		     total_earned = total_earned + $2,
		     updated_at = now()
		 WHERE owner_email_index = $1
		 RETURNING balance
		 `
	var balance int
	if err := r.db.QueryRowContext(ctx, query, ownerIndex, reward).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return balance, nil
}

// Debit consumes one credit. It returns common.ErrorNotFound when the owner
// has no record or no credit left, so the balance can never go negative.
func (r *PostgresRepository) Debit(ctx context.Context, ownerIndex string) (int, error) {
	query :=
		`UPDATE referrals
		 SET balance = balance - 1,
		     updated_at = now()
		 WHERE owner_email_index = $1 AND balance > 0
		 RETURNING balance
		 `
	var balance int
	if err := r.db.QueryRowContext(ctx, query, ownerIndex).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return balance, nil
}

func (r *PostgresRepository) AppendHistory(ctx context.Context, entry *models.CreditEntry) error {
	query :=
		`INSERT INTO credit_history (owner_email_index, action, delta, balance_after, reason)
		 VALUES ($1, $2, $3, $4, $5)
		 `
	if _, err := r.db.ExecContext(ctx, query,
		entry.OwnerEmailIndex, entry.Action, entry.Delta, entry.BalanceAfter, entry.Reason); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecentUses(ctx context.Context, code string, limit int) ([]*models.ReferralUse, error) {
	query :=
		`SELECT referral_code, referrer_email_index, new_user_email_index, new_user_email_masked,
		        payment_amount, reward_credits, used_at
		 FROM referral_uses
		 WHERE referral_code = $1
		 ORDER BY used_at DESC
		 LIMIT $2
		 `
	rows, err := r.db.QueryContext(ctx, query, code, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ReferralUse
	for rows.Next() {
		u := &models.ReferralUse{}
		if err := rows.Scan(&u.Code, &u.ReferrerEmailIndex, &u.NewUserEmailIndex, &u.NewUserEmailMasked,
			&u.PaymentAmount, &u.RewardCredits, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) History(ctx context.Context, ownerIndex string, limit int) ([]*models.CreditEntry, error) {
	query :=
		`SELECT owner_email_index, action, delta, balance_after, reason, created_at
		 FROM credit_history
		 WHERE owner_email_index = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2
		 `
	rows, err := r.db.QueryContext(ctx, query, ownerIndex, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.CreditEntry
	for rows.Next() {
		e := &models.CreditEntry{}
		if err := rows.Scan(&e.OwnerEmailIndex, &e.Action, &e.Delta, &e.BalanceAfter, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Totals(ctx context.Context) (*models.ReferralTotals, error) {
	query :=
		`SELECT
		   (SELECT COUNT(*) FROM referrals),
		   (SELECT COUNT(*) FROM referral_uses),
		   (SELECT COALESCE(SUM(total_earned), 0) FROM referrals),
		   (SELECT COALESCE(SUM(balance), 0) FROM referrals)
		 `
	t := &models.ReferralTotals{}
	if err := r.db.QueryRowContext(ctx, query).
		Scan(&t.TotalCodes, &t.TotalUses, &t.TotalEarned, &t.OutstandingCredit); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Top(ctx context.Context, limit int) ([]*models.Referral, error) {
	query :=
		`SELECT ` + referralColumns + ` FROM referrals
		 ORDER BY total_referrals DESC, created_at
		 LIMIT $1
		 `
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// HistorySums returns, per record, the stored balance next to the sums of
// its earned and used history rows.
func (r *PostgresRepository) HistorySums(ctx context.Context) ([]*models.HistorySum, error) {
	query :=
		`SELECT r.owner_email_index, r.balance,
		        COALESCE(SUM(h.delta) FILTER (WHERE h.action = 'earned'), 0),
		        COALESCE(-SUM(h.delta) FILTER (WHERE h.action = 'used'), 0)
		 FROM referrals r
		 LEFT JOIN credit_history h ON h.owner_email_index = r.owner_email_index
		 GROUP BY r.owner_email_index, r.balance
		 ORDER BY r.owner_email_index
		 `
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.HistorySum
	for rows.Next() {
		s := &models.HistorySum{}
		if err := rows.Scan(&s.OwnerEmailIndex, &s.Balance, &s.Earned, &s.Used); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
