package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"strings"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/license"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/repomanager"
)

// ClientInfo is the request metadata stored with attempts and sessions.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// CheckResult is the outcome of a successful credential check.
type CheckResult struct {
	Identity *models.Identity
	IsAdmin  bool
}

// LoginResult carries the freshly minted session of a successful login.
type LoginResult struct {
	Session *IssuedSession
	Claims  *Claims
}

// ValidatorService is the single login gate. The configured administrator
// is matched before the credential store is consulted.
type ValidatorService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	creds       *CredentialService
	sessions    *SessionService
	admin       license.Admin
	logger      logging.Logger
}

func NewValidatorService(db *sql.DB, m repomanager.RepositoryManager, creds *CredentialService,
	sessions *SessionService, admin license.Admin, logger logging.Logger) *ValidatorService {
	return &ValidatorService{
		db:          db,
		repomanager: m,
		creds:       creds,
		sessions:    sessions,
		admin:       admin,
		logger:      logger,
	}
}

// Validate checks an email and license against the store. Rejections are
// common.ErrorNotFound, common.ErrorInvalidLicense and
// common.ErrorPaymentIncomplete. Every call is written to the attempt log.
func (s *ValidatorService) Validate(ctx context.Context, email, claimed string, client ClientInfo) (*models.Identity, error) {
	identity, err := s.validate(ctx, email, claimed)
	s.recordAttempt(ctx, email, claimed, err == nil, client)
	return identity, err
}

func (s *ValidatorService) validate(ctx context.Context, email, claimed string) (*models.Identity, error) {
	identity, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	stored := license.Normalize(identity.LicenseKey)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(license.Normalize(claimed))) != 1 {
		return nil, common.ErrorInvalidLicense
	}
	if !isPaid(identity.PaymentStatus) {
		return nil, common.ErrorPaymentIncomplete
	}
	return identity, nil
}

func (s *ValidatorService) recordAttempt(ctx context.Context, email, claimed string, ok bool, client ClientInfo) {
	a := &models.LoginAttempt{
		EmailMasked:   common.MaskEmail(email),
		LicensePrefix: licensePrefix(claimed),
		Success:       ok,
		IPAddress:     client.IP,
		UserAgent:     client.UserAgent,
	}
	if s.creds.keys != nil {
		a.EmailIndex = s.creds.keys.EmailIndex(email)
	}
	if err := s.repomanager.Attempts(s.db).Record(ctx, a); err != nil {
		s.logger.Error(ctx, "login attempt not recorded", "error", err)
	}
}

func licensePrefix(claimed string) string {
	l := license.Normalize(claimed)
	if len(l) > 8 {
		l = l[:8]
	}
	return l + "..."
}

// Check is the credential-check call: malformed licenses are rejected with
// common.ErrorMalformedLicense before any lookup, the administrator matches
// without a store row, and a non-empty displayName must equal the stored
// name ignoring case.
func (s *ValidatorService) Check(ctx context.Context, email, claimed, displayName string, client ClientInfo) (*CheckResult, error) {
	if !s.creds.Issuer().ValidFormat(claimed) {
		return nil, common.ErrorMalformedLicense
	}
	if s.admin.Matches(email, claimed) {
		return &CheckResult{Identity: s.adminIdentity(), IsAdmin: true}, nil
	}

	identity, err := s.Validate(ctx, email, claimed, client)
	if err != nil {
		return nil, err
	}
	if !nameMatches(displayName, identity.Name) {
		return nil, common.ErrorNameMismatch
	}
	return &CheckResult{Identity: identity}, nil
}

// Authenticate logs a user in and mints a session. The administrator gets an
// admin session without touching the credential store.
func (s *ValidatorService) Authenticate(ctx context.Context, email, claimed, displayName string, client ClientInfo) (*LoginResult, error) {
	if s.admin.Matches(email, claimed) {
		issued, err := s.sessions.CreateAdmin(ctx, client, 0)
		if err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "admin login", "ip", client.IP)
		return &LoginResult{Session: issued, Claims: s.sessions.adminClaims(issued)}, nil
	}

	identity, err := s.Validate(ctx, email, claimed, client)
	if err != nil {
		return nil, err
	}
	if !nameMatches(displayName, identity.Name) {
		return nil, common.ErrorNameMismatch
	}

	if err := s.creds.RecordLogin(ctx, identity.ID); err != nil {
		s.logger.Warn(ctx, "login bookkeeping failed", "id", identity.ID, "error", err)
	}

	issued, err := s.sessions.Create(ctx, identity.ID, client, 0)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: issued, Claims: claimsFor(issued, identity)}, nil
}

func (s *ValidatorService) adminIdentity() *models.Identity {
	return &models.Identity{
		Email:         common.NormalizeEmail(s.admin.Email),
		Name:          s.admin.Name,
		LicenseKey:    s.admin.License,
		PaymentStatus: common.PaymentStatusCompleted,
		IsActive:      true,
	}
}

func nameMatches(claimed, stored string) bool {
	claimed = strings.TrimSpace(claimed)
	return claimed == "" || strings.EqualFold(claimed, strings.TrimSpace(stored))
}

// IsRejection reports whether err is an expected credential outcome rather
// than a failure of the service itself.
func IsRejection(err error) bool {
	return common.IsCredentialRejection(err) || errors.Is(err, common.ErrorMalformedLicense)
}
