// Package server wires configuration, storage and services together and runs
// the public HTTP API and the internal gRPC API until the process is
// signalled to stop.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/cryptox"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/billing"
	"github.com/dmitrijs2005/profitpal/internal/server/config"
	"github.com/dmitrijs2005/profitpal/internal/server/httpapi"
	"github.com/dmitrijs2005/profitpal/internal/server/license"
	"github.com/dmitrijs2005/profitpal/internal/server/mailer"
	"github.com/dmitrijs2005/profitpal/internal/server/quotes"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/profitpal/internal/server/secrets"
	"github.com/dmitrijs2005/profitpal/internal/server/services"
	"github.com/dmitrijs2005/profitpal/internal/server/storage"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/profitpal/internal/server/grpc"
)

const purgeInterval = time.Hour

var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	loadSecret           = secrets.Load
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	sessions *services.SessionService
	payments *services.PaymentService
	http     *httpapi.Server
	grpc     *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(c.LogFormat, c.LogLevel, os.Stdout)

	keys, err := newKeyring(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m := newRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	admin := license.Admin{Email: c.AdminEmail, License: c.AdminLicenseKey, Name: c.AdminFullName}

	creds := services.NewCredentialService(db, m, keys, admin, logger)
	sessions := services.NewSessionService(db, m, keys, admin, c.SessionTTL, logger)
	validator := services.NewValidatorService(db, m, creds, sessions, admin, logger)
	referrals := services.NewReferralService(db, m, keys, c.PublicBaseURL, c.MonthlyPrice, logger)

	var store services.ObjectStore
	if c.ExportEnabled() {
		store = storage.NewS3Store(storage.S3Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	}
	audit := services.NewAuditService(db, m, store, logger)

	var welcome services.Mailer
	if sm := mailer.NewSMTPMailer(mailer.Config{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		User:     c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
	}); sm.Enabled() {
		welcome = sm
	} else {
		logger.Warn(ctx, "smtp not configured, welcome emails disabled")
	}
	payments := services.NewPaymentService(creds, referrals, welcome, logger)

	checkout := billing.NewStripe(billing.Config{
		SecretKey:     c.StripeSecretKey,
		WebhookSecret: c.StripeWebhookSecret,
		PriceID:       c.StripePriceSetup,
		BaseURL:       c.PublicBaseURL,
	})

	app := &App{
		config:   c,
		logger:   logger,
		db:       db,
		sessions: sessions,
		payments: payments,
	}

	app.http = httpapi.NewServer(c.EndpointAddrHTTP, httpapi.Deps{
		Validator:          validator,
		Sessions:           sessions,
		Referrals:          referrals,
		Credentials:        creds,
		Audit:              audit,
		Payments:           payments,
		Checkout:           checkout,
		Quotes:             quotes.NewClient(c.QuoteAPIBaseURL, c.QuoteAPIKey),
		Cookies:            httpapi.CookiePolicy{Domain: c.CookieDomain, Secure: c.CookieSecure},
		AllowedOrigins:     c.AllowedOrigins,
		LoginRatePerMinute: c.LoginRatePerMinute,
		Logger:             logger,
	})

	if c.GRPCEnabled() {
		app.grpc, err = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, referrals, audit, c.ServiceTokenSecret)
		if err != nil {
			db.Close()
			return nil, err
		}
	} else {
		logger.Warn(ctx, "internal gRPC API disabled, no service token secret")
	}

	return app, nil
}

// newKeyring resolves the encryption seed, from Secret Manager when a secret
// name is configured. A missing seed disables the credential store.
func newKeyring(ctx context.Context, c *config.Config, logger logging.Logger) (*cryptox.Keyring, error) {
	seed := c.EncryptionSecret
	if seed == "" && c.EncryptionSecretName != "" {
		s, err := loadSecret(ctx, c.EncryptionSecretName)
		if err != nil {
			return nil, fmt.Errorf("load encryption secret: %w", err)
		}
		seed = s
	}

	keys, err := cryptox.NewKeyring(seed, c.PreviousEncryptionSecrets, c.EmailIndexSecret)
	if errors.Is(err, common.ErrorEncryptionDisabled) {
		logger.Warn(ctx, "no encryption secret, credential store disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	return keys, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeSessions deletes expired sessions until ctx is cancelled.
func (app *App) purgeSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := app.sessions.PurgeExpired(ctx, time.Now()); err != nil {
				app.logger.Warn(ctx, "session purge failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.purgeSessions(ctx, purgeInterval)
	}()

	if app.grpc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	app.payments.Wait()
	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
