package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/cryptox"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/license"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/repomanager"
)

const (
	DefaultSessionTTL = 30 * 24 * time.Hour

	sessionTokenBytes = 32
	csrfTokenBytes    = 24
)

var planRank = map[string]int{
	common.PlanLifetime:  3,
	common.PlanPro:       2,
	common.PlanStandard:  1,
	common.PlanEarlyBird: 1,
}

// IssuedSession holds the plaintext tokens. They exist only in the response
// that sets the cookies.
type IssuedSession struct {
	ID        string
	Token     string
	CSRFToken string
	ExpiresAt time.Time
	IsAdmin   bool
}

// Claims describe an authenticated session. Plan and SubscriptionStatus stay
// empty when the billing status is unknown.
type Claims struct {
	SessionID          string    `json:"-"`
	IdentityID         string    `json:"identityId,omitempty"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	LicenseKey         string    `json:"licenseKey,omitempty"`
	IsAdmin            bool      `json:"isAdmin"`
	Plan               string    `json:"plan,omitempty"`
	SubscriptionStatus string    `json:"subscriptionStatus,omitempty"`
	ExpiresAt          time.Time `json:"expiresAt"`
	CSRFHash           string    `json:"-"`
}

type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keys        *cryptox.Keyring
	admin       license.Admin
	ttl         time.Duration
	logger      logging.Logger
	now         func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, keys *cryptox.Keyring,
	admin license.Admin, ttl time.Duration, logger logging.Logger) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{
		db:          db,
		repomanager: m,
		keys:        keys,
		admin:       admin,
		ttl:         ttl,
		logger:      logger,
		now:         time.Now,
	}
}

// TTL is the lifetime given to sessions created with a zero ttl.
func (s *SessionService) TTL() time.Duration { return s.ttl }

// Create mints a session for an identity. A non-positive ttl uses the
// configured default.
func (s *SessionService) Create(ctx context.Context, identityID string, client ClientInfo, ttl time.Duration) (*IssuedSession, error) {
	return s.create(ctx, identityID, false, client, ttl)
}

// CreateAdmin mints an administrator session with no identity row.
func (s *SessionService) CreateAdmin(ctx context.Context, client ClientInfo, ttl time.Duration) (*IssuedSession, error) {
	return s.create(ctx, "", true, client, ttl)
}

func (s *SessionService) create(ctx context.Context, identityID string, admin bool, client ClientInfo, ttl time.Duration) (*IssuedSession, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	token, err := common.MakeRandURLToken(sessionTokenBytes)
	if err != nil {
		return nil, common.ErrorInternal
	}
	csrf, err := common.MakeRandURLToken(csrfTokenBytes)
	if err != nil {
		return nil, common.ErrorInternal
	}

	row, err := s.repomanager.Sessions(s.db).Create(ctx, &models.Session{
		IdentityID: identityID,
		IsAdmin:    admin,
		TokenHash:  cryptox.HashToken(token),
		CSRFHash:   cryptox.HashToken(csrf),
		ExpiresAt:  s.now().Add(ttl),
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	return &IssuedSession{
		ID:        row.ID,
		Token:     token,
		CSRFToken: csrf,
		ExpiresAt: row.ExpiresAt,
		IsAdmin:   admin,
	}, nil
}

// Validate resolves a session token to claims. Every failure, including
// storage and decryption errors, is reported as common.ErrorUnauthorized.
func (s *SessionService) Validate(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, common.ErrorUnauthorized
	}

	v, err := s.repomanager.Sessions(s.db).FindByTokenHash(ctx, cryptox.HashToken(token))
	if err != nil {
		s.logger.Debug(ctx, "session lookup failed", "error", err)
		return nil, common.ErrorUnauthorized
	}
	if !v.IsActive {
		s.logger.Debug(ctx, "session revoked", "session", v.ID)
		return nil, common.ErrorUnauthorized
	}
	if !s.now().Before(v.ExpiresAt) {
		s.logger.Debug(ctx, "session expired", "session", v.ID)
		return nil, common.ErrorUnauthorized
	}

	if v.IsAdmin {
		c := s.adminClaims(&IssuedSession{ID: v.ID, ExpiresAt: v.ExpiresAt})
		c.CSRFHash = v.CSRFHash
		return c, nil
	}

	if !v.IdentityActive || s.keys == nil {
		return nil, common.ErrorUnauthorized
	}
	email, err := s.keys.OpenString(v.EmailEnc)
	if err != nil {
		s.logger.Warn(ctx, "session identity unreadable", "session", v.ID)
		return nil, common.ErrorUnauthorized
	}
	name, err := s.keys.OpenString(v.NameEnc)
	if err != nil {
		s.logger.Warn(ctx, "session identity unreadable", "session", v.ID)
		return nil, common.ErrorUnauthorized
	}

	c := &Claims{
		SessionID:  v.ID,
		IdentityID: v.IdentityID,
		Email:      email,
		Name:       name,
		LicenseKey: v.LicenseKey,
		ExpiresAt:  v.ExpiresAt,
		CSRFHash:   v.CSRFHash,
	}
	c.Plan, c.SubscriptionStatus = entitlement(v.PaymentStatus)
	return c, nil
}

// Revoke ends a session. Unknown and already revoked tokens are ignored.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	revoked, err := s.repomanager.Sessions(s.db).Revoke(ctx, cryptox.HashToken(token), s.now())
	if err != nil {
		return err
	}
	if revoked {
		s.logger.Debug(ctx, "session revoked")
	}
	return nil
}

// RequireEntitlement validates token and checks the plan against minPlan.
func (s *SessionService) RequireEntitlement(ctx context.Context, token, minPlan string) (*Claims, error) {
	c, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.Entitled(c, minPlan); err != nil {
		return nil, err
	}
	return c, nil
}

// Entitled returns common.ErrorPaymentRequired unless the claims satisfy
// minPlan. The administrator and active or trialing subscriptions always
// pass.
func (s *SessionService) Entitled(c *Claims, minPlan string) error {
	if c.IsAdmin || s.admin.IsAdminEmail(c.Email) {
		return nil
	}
	if planRank[c.Plan] >= planRank[minPlan] {
		return nil
	}
	switch c.SubscriptionStatus {
	case common.SubscriptionActive, common.SubscriptionTrialing:
		return nil
	}
	return common.ErrorPaymentRequired
}

// VerifyCSRF requires the header and cookie copies to be present, equal and
// to match the token issued with the session.
func (s *SessionService) VerifyCSRF(c *Claims, header, cookie string) error {
	if c == nil || header == "" || cookie == "" {
		return common.ErrorInvalidCSRF
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(cookie)) != 1 {
		return common.ErrorInvalidCSRF
	}
	if subtle.ConstantTimeCompare([]byte(cryptox.HashToken(header)), []byte(c.CSRFHash)) != 1 {
		return common.ErrorInvalidCSRF
	}
	return nil
}

// PurgeExpired deletes sessions that expired before the cutoff.
func (s *SessionService) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).PurgeExpired(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "expired sessions purged", "count", n)
	}
	return n, nil
}

func (s *SessionService) adminClaims(issued *IssuedSession) *Claims {
	return &Claims{
		SessionID:          issued.ID,
		Email:              common.NormalizeEmail(s.admin.Email),
		Name:               s.admin.Name,
		LicenseKey:         s.admin.License,
		IsAdmin:            true,
		Plan:               common.PlanLifetime,
		SubscriptionStatus: common.SubscriptionActive,
		ExpiresAt:          issued.ExpiresAt,
	}
}

func claimsFor(issued *IssuedSession, identity *models.Identity) *Claims {
	c := &Claims{
		SessionID:  issued.ID,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Name:       identity.Name,
		LicenseKey: identity.LicenseKey,
		ExpiresAt:  issued.ExpiresAt,
		CSRFHash:   cryptox.HashToken(issued.CSRFToken),
	}
	c.Plan, c.SubscriptionStatus = entitlement(identity.PaymentStatus)
	return c
}

// entitlement maps a stored payment status to plan and subscription status.
// An empty status leaves both unset.
func entitlement(paymentStatus string) (plan, status string) {
	if paymentStatus == "" {
		return "", ""
	}
	if isPaid(paymentStatus) {
		return common.PlanLifetime, common.SubscriptionActive
	}
	return "", common.SubscriptionInactive
}

func isPaid(paymentStatus string) bool {
	switch paymentStatus {
	case common.PaymentStatusCompleted, "active", "paid":
		return true
	}
	return false
}
