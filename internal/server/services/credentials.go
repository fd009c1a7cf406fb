// Package services contains the ProfitPal business logic: the encrypted
// credential store, login validation, browser sessions, the referral credit
// ledger and its audit.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/cryptox"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/license"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/repomanager"
)

// CredentialService stores identities with encrypted email and name. Lookups
// go through the keyed email index and fall back to decrypting every active
// row, which finds rows written before the index key changed.
//
// A nil keyring means encryption is not configured; every operation then
// returns common.ErrorEncryptionDisabled.
type CredentialService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keys        *cryptox.Keyring
	issuer      *license.Issuer
	logger      logging.Logger
	now         func() time.Time
}

func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager, keys *cryptox.Keyring,
	admin license.Admin, logger logging.Logger) *CredentialService {
	return &CredentialService{
		db:          db,
		repomanager: m,
		keys:        keys,
		issuer:      license.NewIssuer(admin, m.Identities(db)),
		logger:      logger,
		now:         time.Now,
	}
}

// Issuer exposes the license issuer used for new identities.
func (s *CredentialService) Issuer() *license.Issuer { return s.issuer }

// Enabled reports whether an encryption key is configured.
func (s *CredentialService) Enabled() bool { return s.keys != nil }

// Create stores a new paid identity and returns it with plaintext fields and
// the issued license. An active identity with the same email yields
// common.ErrorAlreadyExists.
func (s *CredentialService) Create(ctx context.Context, email, displayName, paymentRef string) (*models.Identity, error) {
	if s.keys == nil {
		return nil, common.ErrorEncryptionDisabled
	}
	email = common.NormalizeEmail(email)

	_, err := s.FindByEmail(ctx, email)
	if err == nil {
		return nil, common.ErrorAlreadyExists
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	lic, err := s.issuer.Issue(ctx, email, displayName)
	if err != nil {
		return nil, err
	}

	emailEnc, err := s.keys.SealString(email)
	if err != nil {
		return nil, err
	}
	nameEnc, err := s.keys.SealString(displayName)
	if err != nil {
		return nil, err
	}

	identity, err := s.repomanager.Identities(s.db).Create(ctx, &models.Identity{
		EmailEnc:         emailEnc,
		NameEnc:          nameEnc,
		EmailIndex:       s.keys.EmailIndex(email),
		LicenseKey:       lic,
		StripeCustomerID: paymentRef,
		PaymentStatus:    common.PaymentStatusCompleted,
	})
	if err != nil {
		return nil, err
	}

	identity.Email = email
	identity.Name = displayName
	s.logger.Info(ctx, "identity created", "id", identity.ID, "email", common.MaskEmail(email))
	return identity, nil
}

// FindByEmail returns the active identity with that email, decrypted. Rows
// that cannot be decrypted are skipped. A row found only by the fallback
// scan gets its index rewritten.
func (s *CredentialService) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	if s.keys == nil {
		return nil, common.ErrorEncryptionDisabled
	}
	email = common.NormalizeEmail(email)
	idx := s.keys.EmailIndex(email)
	repo := s.repomanager.Identities(s.db)

	candidates, err := repo.FindActiveByIndex(ctx, idx)
	if err != nil {
		return nil, err
	}
	for _, row := range candidates {
		if s.matches(ctx, row, email) {
			return row, nil
		}
	}

	all, err := repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range all {
		if row.EmailIndex == idx {
			continue
		}
		if !s.matches(ctx, row, email) {
			continue
		}
		if err := repo.SetEmailIndex(ctx, row.ID, idx); err != nil {
			s.logger.Warn(ctx, "email index backfill failed", "id", row.ID, "error", err)
		} else {
			row.EmailIndex = idx
		}
		return row, nil
	}

	return nil, common.ErrorNotFound
}

// matches opens row and reports whether its email equals email. On a match
// the plaintext fields are filled in; a name that cannot be opened leaves the
// row matched with NameUnreadable set.
func (s *CredentialService) matches(ctx context.Context, row *models.Identity, email string) bool {
	plain, err := s.keys.OpenString(row.EmailEnc)
	if err != nil {
		s.logger.Warn(ctx, "skipping unreadable identity", "id", row.ID)
		return false
	}
	if common.NormalizeEmail(plain) != email {
		return false
	}
	row.Email = plain
	name, err := s.keys.OpenString(row.NameEnc)
	if err != nil {
		s.logger.Warn(ctx, "identity name unreadable", "id", row.ID)
		row.NameUnreadable = true
		return true
	}
	row.Name = name
	return true
}

// Deactivate marks the identity inactive. It reports false when no active
// identity has that email.
func (s *CredentialService) Deactivate(ctx context.Context, email string) (bool, error) {
	identity, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.repomanager.Identities(s.db).Deactivate(ctx, identity.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	s.logger.Info(ctx, "identity deactivated", "id", identity.ID)
	return true, nil
}

func (s *CredentialService) RecordLogin(ctx context.Context, id string) error {
	return s.repomanager.Identities(s.db).RecordLogin(ctx, id, s.now())
}

// Stats counts identities, live sessions and successful logins since UTC
// midnight.
func (s *CredentialService) Stats(ctx context.Context) (*models.AuthStats, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.repomanager.Identities(s.db).Stats(ctx, now, dayStart)
}
