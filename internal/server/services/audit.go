package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ObjectStore receives exported audit reports.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// Drift is one record whose balance disagrees with its history.
type Drift struct {
	OwnerEmailIndex string `json:"ownerEmailIndex"`
	Balance         int    `json:"balance"`
	Earned          int    `json:"earned"`
	Used            int    `json:"used"`
	Expected        int    `json:"expected"`
}

type AuditReport struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generatedAt"`
	Records     int       `json:"records"`
	Drifted     []Drift   `json:"drifted"`
	ObjectKey   string    `json:"objectKey,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
}

// Consistent reports whether every balance matched its history.
func (r *AuditReport) Consistent() bool { return len(r.Drifted) == 0 }

// AuditService recomputes balances from the credit history. A nil store
// disables export.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       ObjectStore
	logger      logging.Logger
	now         func() time.Time
}

func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, store ObjectStore, logger logging.Logger) *AuditService {
	return &AuditService{
		db:          db,
		repomanager: m,
		store:       store,
		logger:      logger,
		now:         time.Now,
	}
}

// Reconcile compares each balance with earned minus used history rows.
func (s *AuditService) Reconcile(ctx context.Context) (*AuditReport, error) {
	sums, err := s.repomanager.Referrals(s.db).HistorySums(ctx)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{
		ID:          uuid.NewString(),
		GeneratedAt: s.now().UTC(),
		Records:     len(sums),
		Drifted:     []Drift{},
	}
	for _, sum := range sums {
		expected := sum.Earned - sum.Used
		if sum.Balance == expected {
			continue
		}
		report.Drifted = append(report.Drifted, Drift{
			OwnerEmailIndex: sum.OwnerEmailIndex,
			Balance:         sum.Balance,
			Earned:          sum.Earned,
			Used:            sum.Used,
			Expected:        expected,
		})
	}

	if report.Consistent() {
		s.logger.Info(ctx, "ledger reconciled", "records", report.Records)
	} else {
		s.logger.Warn(ctx, "ledger drift detected", "records", report.Records, "drifted", len(report.Drifted))
	}
	return report, nil
}

// Export uploads the report as JSON under audit/YYYY/MM/DD/<id>.json and
// fills in its key and a download link. It is a no-op without a store.
func (s *AuditService) Export(ctx context.Context, report *AuditReport) error {
	if s.store == nil {
		return nil
	}

	d := report.GeneratedAt
	key := fmt.Sprintf("audit/%04d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), report.ID)
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, key, body, "application/json"); err != nil {
		return err
	}
	report.ObjectKey = key

	url, err := s.store.PresignGet(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, "audit report link unavailable", "key", key, "error", err)
		return nil
	}
	report.DownloadURL = url
	return nil
}

// ExportEnabled reports whether reports can be uploaded.
func (s *AuditService) ExportEnabled() bool { return s.store != nil }
