// Package models defines server-side data models persisted in the database.
package models

import "time"

// Identity is one paying user. Email and Name hold plaintext only after the
// encrypted columns have been opened by the credential store.
type Identity struct {
	ID               string
	Email            string
	Name             string
	EmailEnc         []byte
	NameEnc          []byte
	EmailIndex       string
	LicenseKey       string
	StripeCustomerID string
	// PaymentStatus is empty when the billing status was never recorded.
	PaymentStatus string
	IsActive      bool
	CreatedAt     time.Time
	LastLogin     *time.Time
	LoginCount    int
	// NameUnreadable is set when the email opened but the name did not.
	NameUnreadable bool
}

// LoginAttempt is one row of the credential-check audit log.
type LoginAttempt struct {
	EmailIndex    string
	EmailMasked   string
	LicensePrefix string
	Success       bool
	IPAddress     string
	UserAgent     string
	AttemptedAt   time.Time
}

// AuthStats backs the admin dashboard.
type AuthStats struct {
	ActiveIdentities int64 `json:"activeIdentities"`
	TotalIdentities  int64 `json:"totalIdentities"`
	ActiveSessions   int64 `json:"activeSessions"`
	LoginsToday      int64 `json:"loginsToday"`
}
