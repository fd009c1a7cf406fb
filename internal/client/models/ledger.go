// Package models holds the client-side views of Ledger responses and the
// local journal rows.
package models

import "time"

type BillingDecision struct {
	ShouldCharge     bool    `json:"shouldCharge"`
	ChargeAmount     float64 `json:"chargeAmount"`
	RemainingCredits int     `json:"remainingCredits"`
}

type ReferralUse struct {
	Email         string  `json:"email"`
	PaymentAmount float64 `json:"paymentAmount"`
	RewardCredits int     `json:"rewardCredits"`
	UsedAt        string  `json:"usedAt"`
}

type CreditEntry struct {
	Action       string `json:"action"`
	Delta        int    `json:"delta"`
	BalanceAfter int    `json:"balanceAfter"`
	Reason       string `json:"reason"`
	CreatedAt    string `json:"createdAt"`
}

type ReferralStats struct {
	Code           string        `json:"code"`
	Link           string        `json:"link"`
	Balance        int           `json:"balance"`
	TotalReferrals int           `json:"totalReferrals"`
	TotalEarned    int           `json:"totalEarned"`
	RecentUses     []ReferralUse `json:"recentUses"`
	History        []CreditEntry `json:"history"`
}

type TopReferrer struct {
	Email          string `json:"email"`
	Code           string `json:"code"`
	TotalReferrals int    `json:"totalReferrals"`
	TotalEarned    int    `json:"totalEarned"`
	Balance        int    `json:"balance"`
}

type GlobalStats struct {
	TotalCodes        int64         `json:"totalCodes"`
	TotalUses         int64         `json:"totalUses"`
	TotalEarned       int64         `json:"totalEarned"`
	OutstandingCredit int64         `json:"outstandingCredit"`
	Top               []TopReferrer `json:"top"`
}

type Drift struct {
	OwnerEmailIndex string `json:"ownerEmailIndex"`
	Balance         int    `json:"balance"`
	Earned          int    `json:"earned"`
	Used            int    `json:"used"`
	Expected        int    `json:"expected"`
}

type AuditReport struct {
	ID          string  `json:"id"`
	GeneratedAt string  `json:"generatedAt"`
	Records     int     `json:"records"`
	Consistent  bool    `json:"consistent"`
	Drifted     []Drift `json:"drifted"`
	ObjectKey   string  `json:"objectKey"`
	DownloadURL string  `json:"downloadUrl"`
}

// JournalEntry is one executed console command.
type JournalEntry struct {
	ID         int64
	Command    string
	Args       string
	OK         bool
	Output     string
	ExecutedAt time.Time
}
