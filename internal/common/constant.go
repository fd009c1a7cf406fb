// Package common contains shared constants, sentinel errors and small helpers
// used across ProfitPal components. Callers should use errors.Is to match
// the error values.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the service
// token on internal calls.
const AccessTokenHeaderName = "access_token"

// Cookie and header names of the browser session pair.
const (
	SessionCookieName = "pp_session"
	CSRFCookieName    = "pp_csrf"
	CSRFHeaderName    = "X-CSRF-Token"
)

// Plan names known to the entitlement ranking.
const (
	PlanLifetime  = "lifetime"
	PlanPro       = "pro"
	PlanStandard  = "standard"
	PlanEarlyBird = "early_bird"
)

// Subscription status values derived from the stored payment status.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionInactive = "inactive"
)

// PaymentStatusCompleted is written for identities created from a finished checkout.
const PaymentStatusCompleted = "completed"
