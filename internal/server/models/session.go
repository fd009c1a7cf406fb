package models

import "time"

// Session is the stored half of a browser session. Tokens themselves are
// never persisted, only their SHA-256 hashes.
type Session struct {
	ID         string
	IdentityID string
	IsAdmin    bool
	TokenHash  string
	CSRFHash   string
	ExpiresAt  time.Time
	IPAddress  string
	UserAgent  string
	IsActive   bool
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// SessionView joins a session with the owning identity's billing fields.
type SessionView struct {
	Session
	IdentityActive bool
	PaymentStatus  string
	EmailEnc       []byte
	NameEnc        []byte
	LicenseKey     string
}
