package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
)

// Mailer sends the welcome message carrying the license.
type Mailer interface {
	SendWelcome(ctx context.Context, to, name, license, referralLink string) error
}

// PaymentEvent is a completed checkout.
type PaymentEvent struct {
	Email        string
	Name         string
	CustomerID   string
	Amount       float64
	ReferralCode string
}

type PaymentOutcome struct {
	Identity  *models.Identity
	Referral  *models.Referral
	Redeemed  *RedeemResult
	Duplicate bool
}

// PaymentService turns a completed payment into an identity, a referral code
// and, when the checkout carried one, a credit for the referrer.
type PaymentService struct {
	creds     *CredentialService
	referrals *ReferralService
	mailer    Mailer
	logger    logging.Logger

	wg sync.WaitGroup
}

func NewPaymentService(creds *CredentialService, referrals *ReferralService, mailer Mailer, logger logging.Logger) *PaymentService {
	return &PaymentService{
		creds:     creds,
		referrals: referrals,
		mailer:    mailer,
		logger:    logger,
	}
}

// CompletePayment is safe to call again for the same event: an existing
// identity is kept, code issuance is idempotent and a repeated redemption is
// rejected by the ledger.
func (s *PaymentService) CompletePayment(ctx context.Context, ev PaymentEvent) (*PaymentOutcome, error) {
	out := &PaymentOutcome{}

	identity, err := s.creds.Create(ctx, ev.Email, ev.Name, ev.CustomerID)
	switch {
	case err == nil:
		out.Identity = identity
	case errors.Is(err, common.ErrorAlreadyExists):
		out.Duplicate = true
		s.logger.Info(ctx, "payment for existing identity", "email", common.MaskEmail(ev.Email))
	default:
		return nil, err
	}

	ref, err := s.referrals.IssueCode(ctx, ev.Email)
	if err != nil {
		return nil, err
	}
	out.Referral = ref

	if code := strings.TrimSpace(ev.ReferralCode); code != "" {
		res, err := s.referrals.Redeem(ctx, code, ev.Email, ev.Amount)
		switch {
		case err == nil:
			out.Redeemed = res
		case isReferralRejection(err):
			s.logger.Warn(ctx, "referral not applied", "code", code, "reason", err)
		default:
			s.logger.Error(ctx, "referral redemption failed", "code", code, "error", err)
		}
	}

	if out.Identity != nil && s.mailer != nil {
		s.sendWelcome(ctx, out.Identity, ref.Link)
	}
	return out, nil
}

func (s *PaymentService) sendWelcome(ctx context.Context, identity *models.Identity, link string) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.mailer.SendWelcome(ctx, identity.Email, identity.Name, identity.LicenseKey, link); err != nil {
			s.logger.Error(ctx, "welcome email failed", "email", common.MaskEmail(identity.Email), "error", err)
		}
	}()
}

// Wait blocks until pending welcome emails are done.
func (s *PaymentService) Wait() { s.wg.Wait() }

func isReferralRejection(err error) bool {
	return errors.Is(err, common.ErrorInvalidReferralCode) ||
		errors.Is(err, common.ErrorAlreadyRedeemed) ||
		errors.Is(err, common.ErrorSelfReferral)
}
