package journal

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/profitpal/internal/client/models"
	"github.com/dmitrijs2005/profitpal/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append stores e and sets its ID.
func (r *SQLiteRepository) Append(ctx context.Context, e *models.JournalEntry) error {
	query := `INSERT INTO journal (command, args, ok, output, executed_at) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, e.Command, e.Args, e.OK, e.Output, e.ExecutedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read journal id: %w", err)
	}
	e.ID = id
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]*models.JournalEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT id, command, args, ok, output, executed_at FROM journal
		ORDER BY executed_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select journal: %w", err)
	}
	defer rows.Close()

	var result []*models.JournalEntry
	for rows.Next() {
		e := &models.JournalEntry{}
		if err := rows.Scan(&e.ID, &e.Command, &e.Args, &e.OK, &e.Output, &e.ExecutedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
