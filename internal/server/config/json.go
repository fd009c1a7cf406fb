package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/profitpal/internal/flagx"
	"github.com/dmitrijs2005/profitpal/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so both "720h" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	DatabaseDSN      string `json:"database_dsn"`

	EncryptionSecret          string   `json:"encryption_secret"`
	PreviousEncryptionSecrets []string `json:"previous_encryption_secrets"`
	EmailIndexSecret          string   `json:"email_index_secret"`
	EncryptionSecretName      string   `json:"encryption_secret_name"`

	AdminEmail      string `json:"admin_email"`
	AdminLicenseKey string `json:"admin_license_key"`
	AdminFullName   string `json:"admin_full_name"`

	CookieDomain       string         `json:"cookie_domain"`
	CookieSecure       string         `json:"cookie_secure"`
	SessionTTL         timex.Duration `json:"session_ttl"`
	AllowedOrigins     []string       `json:"allowed_origins"`
	LoginRatePerMinute int            `json:"login_rate_per_minute"`

	ServiceTokenSecret   string         `json:"service_token_secret"`
	ServiceTokenValidity timex.Duration `json:"service_token_validity"`

	StripeSecretKey     string  `json:"stripe_secret_key"`
	StripeWebhookSecret string  `json:"stripe_webhook_secret"`
	StripePriceSetup    string  `json:"stripe_price_setup"`
	PublicBaseURL       string  `json:"public_base_url"`
	MonthlyPrice        float64 `json:"monthly_price"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPassword string `json:"smtp_password"`
	SMTPFrom     string `json:"smtp_from"`

	QuoteAPIBaseURL string `json:"quote_api_base_url"`
	QuoteAPIKey     string `json:"quote_api_key"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	LogFormat string `json:"log_format"`
	LogLevel  string `json:"log_level"`
}

// parseJson overlays the file named by -c/-config on config. Keys missing
// from the file keep their current value. A file that cannot be read or
// parsed is a startup error and panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrHTTP:          c.EndpointAddrHTTP,
		EndpointAddrGRPC:          c.EndpointAddrGRPC,
		DatabaseDSN:               c.DatabaseDSN,
		EncryptionSecret:          c.EncryptionSecret,
		PreviousEncryptionSecrets: c.PreviousEncryptionSecrets,
		EmailIndexSecret:          c.EmailIndexSecret,
		EncryptionSecretName:      c.EncryptionSecretName,
		AdminEmail:                c.AdminEmail,
		AdminLicenseKey:           c.AdminLicenseKey,
		AdminFullName:             c.AdminFullName,
		CookieDomain:              c.CookieDomain,
		CookieSecure:              c.CookieSecure,
		SessionTTL:                timex.Duration{Duration: c.SessionTTL},
		AllowedOrigins:            c.AllowedOrigins,
		LoginRatePerMinute:        c.LoginRatePerMinute,
		ServiceTokenSecret:        c.ServiceTokenSecret,
		ServiceTokenValidity:      timex.Duration{Duration: c.ServiceTokenValidity},
		StripeSecretKey:           c.StripeSecretKey,
		StripeWebhookSecret:       c.StripeWebhookSecret,
		StripePriceSetup:          c.StripePriceSetup,
		PublicBaseURL:             c.PublicBaseURL,
		MonthlyPrice:              c.MonthlyPrice,
		SMTPHost:                  c.SMTPHost,
		SMTPPort:                  c.SMTPPort,
		SMTPUser:                  c.SMTPUser,
		SMTPPassword:              c.SMTPPassword,
		SMTPFrom:                  c.SMTPFrom,
		QuoteAPIBaseURL:           c.QuoteAPIBaseURL,
		QuoteAPIKey:               c.QuoteAPIKey,
		S3AccessKey:               c.S3AccessKey,
		S3SecretKey:               c.S3SecretKey,
		S3Bucket:                  c.S3Bucket,
		S3Region:                  c.S3Region,
		S3BaseEndpoint:            c.S3BaseEndpoint,
		LogFormat:                 c.LogFormat,
		LogLevel:                  c.LogLevel,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.EndpointAddrHTTP = j.EndpointAddrHTTP
	c.EndpointAddrGRPC = j.EndpointAddrGRPC
	c.DatabaseDSN = j.DatabaseDSN
	c.EncryptionSecret = j.EncryptionSecret
	c.PreviousEncryptionSecrets = j.PreviousEncryptionSecrets
	c.EmailIndexSecret = j.EmailIndexSecret
	c.EncryptionSecretName = j.EncryptionSecretName
	c.AdminEmail = j.AdminEmail
	c.AdminLicenseKey = j.AdminLicenseKey
	c.AdminFullName = j.AdminFullName
	c.CookieDomain = j.CookieDomain
	c.CookieSecure = j.CookieSecure
	c.SessionTTL = j.SessionTTL.Duration
	c.AllowedOrigins = j.AllowedOrigins
	c.LoginRatePerMinute = j.LoginRatePerMinute
	c.ServiceTokenSecret = j.ServiceTokenSecret
	c.ServiceTokenValidity = j.ServiceTokenValidity.Duration
	c.StripeSecretKey = j.StripeSecretKey
	c.StripeWebhookSecret = j.StripeWebhookSecret
	c.StripePriceSetup = j.StripePriceSetup
	c.PublicBaseURL = j.PublicBaseURL
	c.MonthlyPrice = j.MonthlyPrice
	c.SMTPHost = j.SMTPHost
	c.SMTPPort = j.SMTPPort
	c.SMTPUser = j.SMTPUser
	c.SMTPPassword = j.SMTPPassword
	c.SMTPFrom = j.SMTPFrom
	c.QuoteAPIBaseURL = j.QuoteAPIBaseURL
	c.QuoteAPIKey = j.QuoteAPIKey
	c.S3AccessKey = j.S3AccessKey
	c.S3SecretKey = j.S3SecretKey
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.LogFormat = j.LogFormat
	c.LogLevel = j.LogLevel
}
