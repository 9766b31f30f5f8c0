// Package config defines the global configuration structure for the Devmint
// payments backend. Configuration is loaded once at process initialization
// (Lambda cold start or server boot) and is immutable thereafter. It follows
// 12-Factor App principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the process to exit
// immediately on startup (fail fast).
package config

import (
	"time"

	"devmint/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values such as the provider API key and webhook signing secret.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the payments backend.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"devmint-payments"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Paddle        PaddleConfig
	Email         EmailConfig
	Observability ObservabilityConfig

	// Build metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public site URL for post-checkout redirects (no trailing slash).
	SiteURL string `envconfig:"SITE_URL" validate:"required,url"` // e.g., https://devmint.site
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PaddleConfig holds payment provider credentials and catalog identifiers.
// The webhook secret and API key are deployment secrets resolved from the
// environment or SSM; they are never present in source.
type PaddleConfig struct {
	APIKey        SecretString `envconfig:"PADDLE_API_KEY" validate:"required"`
	WebhookSecret SecretString `envconfig:"PADDLE_WEBHOOK_SECRET" validate:"required"`
	SellerID      string       `envconfig:"PADDLE_SELLER_ID" validate:"required"`
	Environment   string       `envconfig:"PADDLE_ENV" default:"production" validate:"oneof=sandbox production"`

	// DonationPriceID is the provider price used as the carrier for
	// variable-amount donations; the actual amount is set per-transaction.
	DonationPriceID string `envconfig:"PADDLE_DONATION_PRICE_ID" validate:"required"`

	// PricesJSON is a JSON mapping of provider price IDs to plan descriptors:
	// {"pri_123": {"plan": "starter", "cycle": "monthly"}, ...}
	PricesJSON string `envconfig:"PADDLE_PRICES_JSON" validate:"required,json"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"support@devmint.site"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"Devmint"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Devmint"`
}

// BuildInfo carries version metadata injected by the build pipeline.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
