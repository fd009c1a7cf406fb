package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/cryptox"
	"github.com/dmitrijs2005/profitpal/internal/dbx"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
	"github.com/dmitrijs2005/profitpal/internal/server/referralcode"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/repomanager"
)

const (
	ReferralReward = 1

	codeAttempts   = 100
	insertAttempts = 3
	recentLimit    = 10
	topLimit       = 10

	consumeReason = "Monthly billing - used free month"
)

// BillingDecision is the answer of the monthly billing gate.
type BillingDecision struct {
	ShouldCharge     bool    `json:"shouldCharge"`
	ChargeAmount     float64 `json:"chargeAmount"`
	RemainingCredits int     `json:"remainingCredits"`
}

type RedeemResult struct {
	ReferrerEmail string `json:"referrerEmail"`
	NewBalance    int    `json:"newBalance"`
}

type ReferralStats struct {
	Referral   *models.Referral
	RecentUses []*models.ReferralUse
	History    []*models.CreditEntry
}

type TopReferrer struct {
	Email          string `json:"email"`
	Code           string `json:"code"`
	TotalReferrals int    `json:"totalReferrals"`
	TotalEarned    int    `json:"totalEarned"`
	Balance        int    `json:"balance"`
}

type GlobalReferralStats struct {
	Totals *models.ReferralTotals
	Top    []TopReferrer
}

// ReferralService is the referral credit ledger. Records are keyed by the
// owner's email index; every balance change runs in one transaction holding
// the owner's row lock.
type ReferralService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keys        *cryptox.Keyring
	baseURL     string
	fullPrice   float64
	logger      logging.Logger
	now         func() time.Time
	generate    func() string
}

func NewReferralService(db *sql.DB, m repomanager.RepositoryManager, keys *cryptox.Keyring,
	baseURL string, fullPrice float64, logger logging.Logger) *ReferralService {
	return &ReferralService{
		db:          db,
		repomanager: m,
		keys:        keys,
		baseURL:     baseURL,
		fullPrice:   fullPrice,
		logger:      logger,
		now:         time.Now,
		generate:    referralcode.Generate,
	}
}

// FullPrice is the monthly amount charged when no credit is available.
func (s *ReferralService) FullPrice() float64 { return s.fullPrice }

// IssueCode returns the owner's record, creating it with a fresh code and a
// zero balance on first use.
func (s *ReferralService) IssueCode(ctx context.Context, email string) (*models.Referral, error) {
	if s.keys == nil {
		return nil, common.ErrorEncryptionDisabled
	}
	email = common.NormalizeEmail(email)
	idx := s.keys.EmailIndex(email)
	repo := s.repomanager.Referrals(s.db)

	ref, err := repo.FindByOwner(ctx, idx)
	if err == nil {
		ref.OwnerEmail = email
		return ref, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	enc, err := s.keys.SealString(email)
	if err != nil {
		return nil, err
	}

	for range insertAttempts {
		code, err := s.freeCode(ctx)
		if err != nil {
			return nil, err
		}
		ref := &models.Referral{
			OwnerEmailIndex: idx,
			OwnerEmailEnc:   enc,
			OwnerEmail:      email,
			Code:            code,
			Link:            referralcode.Link(s.baseURL, code),
		}
		inserted, err := repo.Insert(ctx, ref)
		if err != nil {
			return nil, err
		}
		if inserted {
			s.logger.Info(ctx, "referral code issued", "email", common.MaskEmail(email), "code", code)
			return ref, nil
		}

		// Either a concurrent call created the owner's record or the code
		// was taken in the meantime.
		existing, err := repo.FindByOwner(ctx, idx)
		if err == nil {
			existing.OwnerEmail = email
			return existing, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("referral code allocation failed for %s", common.MaskEmail(email))
}

func (s *ReferralService) freeCode(ctx context.Context) (string, error) {
	repo := s.repomanager.Referrals(s.db)
	for range codeAttempts {
		code := s.generate()
		taken, err := repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return referralcode.Fallback(s.now()), nil
}

// Redeem credits the owner of code for the signup of newEmail. The amount is
// recorded for audit only; the reward is always ReferralReward.
func (s *ReferralService) Redeem(ctx context.Context, code, newEmail string, amount float64) (*RedeemResult, error) {
	if s.keys == nil {
		return nil, common.ErrorEncryptionDisabled
	}
	code = strings.TrimSpace(code)
	if !referralcode.ValidFormat(code) {
		return nil, common.ErrorInvalidReferralCode
	}
	newEmail = common.NormalizeEmail(newEmail)
	newIdx := s.keys.EmailIndex(newEmail)
	masked := common.MaskEmail(newEmail)

	ref, balance, err := s.redeemTx(ctx, code, newIdx, masked, amount)
	if err != nil {
		return nil, err
	}

	res := &RedeemResult{NewBalance: balance}
	if email, err := s.keys.OpenString(ref.OwnerEmailEnc); err == nil {
		res.ReferrerEmail = email
	} else {
		s.logger.Warn(ctx, "referrer email unreadable", "code", code)
	}
	s.logger.Info(ctx, "referral redeemed", "code", code, "new_user", masked, "balance", balance)
	return res, nil
}

func (s *ReferralService) redeemTx(ctx context.Context, code, newIdx, masked string, amount float64) (*models.Referral, int, error) {
	var ref *models.Referral
	var balance int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Referrals(tx)

		var err error
		ref, err = repo.LockByCode(ctx, code)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorInvalidReferralCode
			}
			return err
		}
		if ref.OwnerEmailIndex == newIdx {
			return common.ErrorSelfReferral
		}

		recorded, err := repo.InsertUse(ctx, &models.ReferralUse{
			Code:               code,
			ReferrerEmailIndex: ref.OwnerEmailIndex,
			NewUserEmailIndex:  newIdx,
			NewUserEmailMasked: masked,
			PaymentAmount:      amount,
			RewardCredits:      ReferralReward,
		})
		if err != nil {
			return err
		}
		if !recorded {
			return common.ErrorAlreadyRedeemed
		}

		balance, err = repo.Credit(ctx, ref.OwnerEmailIndex, ReferralReward)
		if err != nil {
			return err
		}
		return repo.AppendHistory(ctx, &models.CreditEntry{
			OwnerEmailIndex: ref.OwnerEmailIndex,
			Action:          models.CreditEarned,
			Delta:           ReferralReward,
			BalanceAfter:    balance,
			Reason:          "Referral signup: " + masked,
		})
	})
	return ref, balance, err
}

// ConsumeCreditOrCharge is the monthly billing gate. One credit, when
// available, replaces the charge. Any ledger failure charges the full
// price.
func (s *ReferralService) ConsumeCreditOrCharge(ctx context.Context, email string) BillingDecision {
	full := BillingDecision{ShouldCharge: true, ChargeAmount: s.fullPrice}
	if s.keys == nil {
		s.logger.Error(ctx, "billing gate without encryption key, charging in full")
		return full
	}
	idx := s.keys.EmailIndex(email)

	decision, err := dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (BillingDecision, error) {
		repo := s.repomanager.Referrals(tx)

		ref, err := repo.LockByOwner(ctx, idx)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return full, nil
			}
			return full, err
		}
		if ref.Balance <= 0 {
			return full, nil
		}

		balance, err := repo.Debit(ctx, idx)
		if err != nil {
			return full, err
		}
		if err := repo.AppendHistory(ctx, &models.CreditEntry{
			OwnerEmailIndex: idx,
			Action:          models.CreditUsed,
			Delta:           -1,
			BalanceAfter:    balance,
			Reason:          consumeReason,
		}); err != nil {
			return full, err
		}
		return BillingDecision{ShouldCharge: false, ChargeAmount: 0, RemainingCredits: balance}, nil
	})
	if err != nil {
		s.logger.Error(ctx, "billing gate failed, charging in full", "email", common.MaskEmail(email), "error", err)
		return full
	}
	if !decision.ShouldCharge {
		s.logger.Info(ctx, "free month consumed", "email", common.MaskEmail(email), "remaining", decision.RemainingCredits)
	}
	return decision
}

// Stats returns the caller's record with recent uses and ledger rows.
func (s *ReferralService) Stats(ctx context.Context, email string) (*ReferralStats, error) {
	if s.keys == nil {
		return nil, common.ErrorEncryptionDisabled
	}
	email = common.NormalizeEmail(email)
	idx := s.keys.EmailIndex(email)
	repo := s.repomanager.Referrals(s.db)

	ref, err := repo.FindByOwner(ctx, idx)
	if err != nil {
		return nil, err
	}
	ref.OwnerEmail = email

	uses, err := repo.RecentUses(ctx, ref.Code, recentLimit)
	if err != nil {
		return nil, err
	}
	history, err := repo.History(ctx, idx, recentLimit)
	if err != nil {
		return nil, err
	}
	return &ReferralStats{Referral: ref, RecentUses: uses, History: history}, nil
}

// GlobalStats aggregates the whole program for the admin dashboard.
func (s *ReferralService) GlobalStats(ctx context.Context) (*GlobalReferralStats, error) {
	repo := s.repomanager.Referrals(s.db)

	totals, err := repo.Totals(ctx)
	if err != nil {
		return nil, err
	}
	top, err := repo.Top(ctx, topLimit)
	if err != nil {
		return nil, err
	}

	out := &GlobalReferralStats{Totals: totals, Top: make([]TopReferrer, 0, len(top))}
	for _, ref := range top {
		t := TopReferrer{
			Code:           ref.Code,
			TotalReferrals: ref.TotalReferrals,
			TotalEarned:    ref.TotalEarned,
			Balance:        ref.Balance,
		}
		if s.keys != nil {
			if email, err := s.keys.OpenString(ref.OwnerEmailEnc); err == nil {
				t.Email = email
			}
		}
		out.Top = append(out.Top, t)
	}
	return out, nil
}
