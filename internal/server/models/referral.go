package models

import "time"

// Referral is the per-owner ledger row.
type Referral struct {
	OwnerEmailIndex string
	OwnerEmailEnc   []byte
	OwnerEmail      string
	Code            string
	Link            string
	Balance         int
	TotalReferrals  int
	TotalEarned     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReferralUse records one signup under a code.
type ReferralUse struct {
	Code               string
	ReferrerEmailIndex string
	NewUserEmailIndex  string
	NewUserEmailMasked string
	PaymentAmount      float64
	RewardCredits      int
	UsedAt             time.Time
}

// Credit history actions.
const (
	CreditEarned = "earned"
	CreditUsed   = "used"
)

// CreditEntry is one append-only ledger movement.
type CreditEntry struct {
	OwnerEmailIndex string
	Action          string
	Delta           int
	BalanceAfter    int
	Reason          string
	CreatedAt       time.Time
}

// ReferralTotals aggregates the whole program.
type ReferralTotals struct {
	TotalCodes        int64
	TotalUses         int64
	TotalEarned       int64
	OutstandingCredit int64
}

// HistorySum is the per-owner sum of history rows used by reconciliation.
type HistorySum struct {
	OwnerEmailIndex string
	Balance         int
	Earned          int
	Used            int
}
