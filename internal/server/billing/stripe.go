// Package billing talks to Stripe: it opens hosted checkout sessions and
// turns verified webhook deliveries into payment events.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/profitpal/internal/server/services"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const eventCheckoutCompleted = "checkout.session.completed"

// ErrNotConfigured is returned when no Stripe key or price is set.
var ErrNotConfigured = errors.New("checkout not configured")

// newCheckoutSession is a seam for tests.
var newCheckoutSession = checkoutsession.New

type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	BaseURL       string
}

type Stripe struct {
	cfg Config
}

func NewStripe(cfg Config) *Stripe {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &Stripe{cfg: cfg}
}

// CreateCheckout opens a one-time payment checkout and returns its URL. The
// email and the optional referral code travel in the session metadata.
func (s *Stripe) CreateCheckout(ctx context.Context, email, referralCode string) (string, error) {
	if s.cfg.SecretKey == "" || s.cfg.PriceID == "" {
		return "", ErrNotConfigured
	}

	metadata := map[string]string{"type": "setup_payment", "email": email}
	if referralCode != "" {
		metadata["referral_code"] = referralCode
	}

	base := strings.TrimRight(s.cfg.BaseURL, "/")
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(s.cfg.PriceID), Quantity: stripe.Int64(1)},
		},
		Mode:             stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:    stripe.String(email),
		CustomerCreation: stripe.String("always"),
		SuccessURL:       stripe.String(base + "/setup-success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:        stripe.String(base + "/cancel"),
		Metadata:         metadata,
	}

	sess, err := newCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// ParseWebhook verifies the signature and extracts a completed, paid
// checkout. ok is false for every other event type.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (ev services.PaymentEvent, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return ev, false, fmt.Errorf("verify webhook: %w", err)
	}
	if string(event.Type) != eventCheckoutCompleted {
		return ev, false, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return ev, false, fmt.Errorf("decode checkout session: %w", err)
	}
	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return ev, false, nil
	}

	ev = services.PaymentEvent{
		Email:        cs.CustomerEmail,
		Amount:       float64(cs.AmountTotal) / 100,
		ReferralCode: cs.Metadata["referral_code"],
	}
	if cs.CustomerDetails != nil {
		if ev.Email == "" {
			ev.Email = cs.CustomerDetails.Email
		}
		ev.Name = cs.CustomerDetails.Name
	}
	if ev.Email == "" {
		ev.Email = cs.Metadata["email"]
	}
	if cs.Customer != nil {
		ev.CustomerID = cs.Customer.ID
	}
	if ev.Email == "" {
		return ev, false, errors.New("checkout session without email")
	}
	return ev, true, nil
}
