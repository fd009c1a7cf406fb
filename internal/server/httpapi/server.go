// Package httpapi exposes the public JSON API: credential checks, browser
// sessions, referral stats, checkout and the admin dashboard.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
	"github.com/dmitrijs2005/profitpal/internal/server/quotes"
	"github.com/dmitrijs2005/profitpal/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
)

const shutdownTimeout = 10 * time.Second

type credentialChecker interface {
	Check(ctx context.Context, email, claimed, displayName string, client services.ClientInfo) (*services.CheckResult, error)
	Authenticate(ctx context.Context, email, claimed, displayName string, client services.ClientInfo) (*services.LoginResult, error)
}

type sessionStore interface {
	Validate(ctx context.Context, token string) (*services.Claims, error)
	Revoke(ctx context.Context, token string) error
	Entitled(c *services.Claims, minPlan string) error
	VerifyCSRF(c *services.Claims, header, cookie string) error
}

type referralLedger interface {
	IssueCode(ctx context.Context, email string) (*models.Referral, error)
	Stats(ctx context.Context, email string) (*services.ReferralStats, error)
	GlobalStats(ctx context.Context) (*services.GlobalReferralStats, error)
}

type identityAdmin interface {
	Deactivate(ctx context.Context, email string) (bool, error)
	Stats(ctx context.Context) (*models.AuthStats, error)
}

type ledgerAuditor interface {
	Reconcile(ctx context.Context) (*services.AuditReport, error)
	Export(ctx context.Context, report *services.AuditReport) error
	ExportEnabled() bool
}

type paymentCompleter interface {
	CompletePayment(ctx context.Context, ev services.PaymentEvent) (*services.PaymentOutcome, error)
}

type checkoutProvider interface {
	CreateCheckout(ctx context.Context, email, referralCode string) (string, error)
	ParseWebhook(payload []byte, signature string) (services.PaymentEvent, bool, error)
}

type quoteSource interface {
	Get(ctx context.Context, ticker string) (*quotes.Quote, error)
}

// Deps are the collaborators of the API. Every field is required except
// Quotes and Checkout, whose routes answer 503 when unset.
type Deps struct {
	Validator   credentialChecker
	Sessions    sessionStore
	Referrals   referralLedger
	Credentials identityAdmin
	Audit       ledgerAuditor
	Payments    paymentCompleter
	Checkout    checkoutProvider
	Quotes      quoteSource

	Cookies            CookiePolicy
	AllowedOrigins     []string
	LoginRatePerMinute int
	Logger             logging.Logger
}

type Server struct {
	address  string
	deps     Deps
	logger   logging.Logger
	validate *validator.Validate
	limiter  *ipRateLimiter
	handler  http.Handler
	now      func() time.Time
}

func NewServer(address string, d Deps) *Server {
	s := &Server{
		address:  address,
		deps:     d,
		logger:   d.Logger.With("module", "http_server"),
		validate: newValidator(),
		limiter:  newIPRateLimiter(d.LoginRatePerMinute),
		now:      time.Now,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/stripe/webhook", s.handleStripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/auth/check", s.handleCheck)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/checkout", s.handleCheckout)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/me", s.handleMe)
			r.Get("/referrals/stats", s.handleReferralStats)
			r.With(s.requireCSRF).Post("/auth/logout", s.handleLogout)
			r.With(s.requirePlan(common.PlanStandard)).Get("/quotes/{ticker}", s.handleQuote)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/stats", s.handleAdminStats)
				r.With(s.requireCSRF).Post("/deactivate", s.handleDeactivate)
				r.With(s.requireCSRF).Post("/reconcile", s.handleReconcile)
			})
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   s.deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", csrfHeader},
		AllowCredentials: true,
		MaxAge:           3600,
	})
	return c.Handler(r)
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
