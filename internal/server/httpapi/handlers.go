package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/server/billing"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
	"github.com/dmitrijs2005/profitpal/internal/server/quotes"
	"github.com/dmitrijs2005/profitpal/internal/server/referralcode"
	"github.com/dmitrijs2005/profitpal/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type credentialsRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	LicenseKey string `json:"licenseKey" validate:"required,max=64"`
	Name       string `json:"name" validate:"max=200"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type checkoutRequest struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	ReferralCode string `json:"referralCode" validate:"omitempty,len=15,alphanum"`
}

type referralSummary struct {
	Code           string `json:"code"`
	Link           string `json:"link"`
	Balance        int    `json:"balance"`
	TotalReferrals int    `json:"totalReferrals"`
	TotalEarned    int    `json:"totalEarned"`
}

type checkResponse struct {
	Valid    bool             `json:"valid"`
	Email    string           `json:"email"`
	Name     string           `json:"name"`
	IsAdmin  bool             `json:"isAdmin"`
	Referral *referralSummary `json:"referral,omitempty"`
}

type sessionResponse struct {
	User     *services.Claims `json:"user"`
	Referral *referralSummary `json:"referral,omitempty"`
}

type referralUseView struct {
	Email         string    `json:"email"`
	PaymentAmount float64   `json:"paymentAmount"`
	RewardCredits int       `json:"rewardCredits"`
	UsedAt        time.Time `json:"usedAt"`
}

type creditEntryView struct {
	Action       string    `json:"action"`
	Delta        int       `json:"delta"`
	BalanceAfter int       `json:"balanceAfter"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"createdAt"`
}

type referralStatsResponse struct {
	referralSummary
	RecentUses []referralUseView `json:"recentUses"`
	History    []creditEntryView `json:"history"`
}

type adminStatsResponse struct {
	Auth      *models.AuthStats `json:"auth"`
	Referrals globalView        `json:"referrals"`
}

type globalView struct {
	TotalCodes        int64                  `json:"totalCodes"`
	TotalUses         int64                  `json:"totalUses"`
	TotalEarned       int64                  `json:"totalEarned"`
	OutstandingCredit int64                  `json:"outstandingCredit"`
	Top               []services.TopReferrer `json:"top"`
}

func summarize(ref *models.Referral) *referralSummary {
	return &referralSummary{
		Code:           ref.Code,
		Link:           ref.Link,
		Balance:        ref.Balance,
		TotalReferrals: ref.TotalReferrals,
		TotalEarned:    ref.TotalEarned,
	}
}

// referralSummary is best effort: a failure only drops the summary.
func (s *Server) referralSummary(ctx context.Context, email string) *referralSummary {
	ref, err := s.deps.Referrals.IssueCode(ctx, email)
	if err != nil {
		s.logger.Warn(ctx, "referral summary unavailable", "error", err)
		return nil
	}
	return summarize(ref)
}

func clientInfo(r *http.Request) services.ClientInfo {
	return services.ClientInfo{IP: clientIP(r), UserAgent: r.UserAgent()}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Validator.Check(r.Context(), req.Email, req.LicenseKey, req.Name, clientInfo(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := checkResponse{
		Valid:   true,
		Email:   res.Identity.Email,
		Name:    res.Identity.Name,
		IsAdmin: res.IsAdmin,
	}
	if !res.IsAdmin {
		resp.Referral = s.referralSummary(r.Context(), res.Identity.Email)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Validator.Authenticate(r.Context(), req.Email, req.LicenseKey, req.Name, clientInfo(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.deps.Cookies.setSession(w, r, res.Session, s.now())

	resp := sessionResponse{User: res.Claims}
	if !res.Claims.IsAdmin {
		resp.Referral = s.referralSummary(r.Context(), res.Claims.Email)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Revoke(r.Context(), sessionToken(r)); err != nil {
		s.logger.Warn(r.Context(), "session revoke failed", "error", err)
	}
	s.deps.Cookies.clear(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	resp := sessionResponse{User: claims}
	if !claims.IsAdmin {
		resp.Referral = s.referralSummary(r.Context(), claims.Email)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReferralStats(w http.ResponseWriter, r *http.Request) {
	email := claimsFrom(r.Context()).Email

	if _, err := s.deps.Referrals.IssueCode(r.Context(), email); err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.deps.Referrals.Stats(r.Context(), email)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := referralStatsResponse{
		referralSummary: *summarize(stats.Referral),
		RecentUses:      make([]referralUseView, 0, len(stats.RecentUses)),
		History:         make([]creditEntryView, 0, len(stats.History)),
	}
	for _, u := range stats.RecentUses {
		resp.RecentUses = append(resp.RecentUses, referralUseView{
			Email:         u.NewUserEmailMasked,
			PaymentAmount: u.PaymentAmount,
			RewardCredits: u.RewardCredits,
			UsedAt:        u.UsedAt,
		})
	}
	for _, h := range stats.History {
		resp.History = append(resp.History, creditEntryView{
			Action:       h.Action,
			Delta:        h.Delta,
			BalanceAfter: h.BalanceAfter,
			Reason:       h.Reason,
			CreatedAt:    h.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quotes == nil {
		writeError(w, http.StatusServiceUnavailable, "quotes unavailable")
		return
	}

	q, err := s.deps.Quotes.Get(r.Context(), chi.URLParam(r, "ticker"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, q)
	case errors.Is(err, quotes.ErrUnknownTicker):
		writeError(w, http.StatusNotFound, "unknown ticker")
	case errors.Is(err, quotes.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "quotes unavailable")
	default:
		s.logger.Warn(r.Context(), "quote fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "quote provider unavailable")
	}
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checkout == nil {
		writeError(w, http.StatusServiceUnavailable, "checkout unavailable")
		return
	}

	var req checkoutRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ReferralCode != "" && !referralcode.ValidFormat(req.ReferralCode) {
		writeError(w, http.StatusBadRequest, "invalid referral code")
		return
	}

	url, err := s.deps.Checkout.CreateCheckout(r.Context(), common.NormalizeEmail(req.Email), req.ReferralCode)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	case errors.Is(err, billing.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "checkout unavailable")
	default:
		s.logger.Error(r.Context(), "checkout failed", "error", err)
		writeError(w, http.StatusBadGateway, "checkout provider unavailable")
	}
}

// handleStripeWebhook answers 5xx only when the payment could not be
// recorded, so Stripe retries the delivery.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checkout == nil {
		writeError(w, http.StatusServiceUnavailable, "checkout unavailable")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, ok, err := s.deps.Checkout.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.logger.Warn(r.Context(), "webhook rejected", "error", err)
		writeError(w, http.StatusBadRequest, "invalid webhook")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	out, err := s.deps.Payments.CompletePayment(r.Context(), ev)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true, "duplicate": out.Duplicate})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	auth, err := s.deps.Credentials.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	global, err := s.deps.Referrals.GlobalStats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := adminStatsResponse{Auth: auth, Referrals: globalView{Top: global.Top}}
	if t := global.Totals; t != nil {
		resp.Referrals.TotalCodes = t.TotalCodes
		resp.Referrals.TotalUses = t.TotalUses
		resp.Referrals.TotalEarned = t.TotalEarned
		resp.Referrals.OutstandingCredit = t.OutstandingCredit
	}
	if resp.Referrals.Top == nil {
		resp.Referrals.Top = []services.TopReferrer{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}

	ok, err := s.deps.Credentials.Deactivate(r.Context(), req.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info(r.Context(), "identity deactivated by admin", "email", common.MaskEmail(req.Email), "changed", ok)
	writeJSON(w, http.StatusOK, map[string]bool{"deactivated": ok})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Audit.Reconcile(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.deps.Audit.ExportEnabled() {
		if err := s.deps.Audit.Export(r.Context(), report); err != nil {
			s.logger.Warn(r.Context(), "audit export failed", "id", report.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, report)
}
