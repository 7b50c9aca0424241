// Package config defines the process configuration for the ClientDesk billing
// API. It is loaded once at startup and treated as immutable afterwards.
//
// Resolution order:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format aborts startup.
package config

import (
	"time"

	"clientdesk/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types just to unmask a credential.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Components receive only the
// section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"clientdesk-billing"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// IsLocal reports whether vendor clients should be replaced by stubs.
func (c *Config) IsLocal() bool {
	return c.IsTestMode || c.Environment == localEnv
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// DashboardURL is the only host checkout redirects may point at (no trailing slash).
	DashboardURL   string        `envconfig:"DASHBOARD_URL" validate:"required,url"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s" validate:"gt=0"`
	ShutdownGrace  time.Duration `envconfig:"SHUTDOWN_GRACE" default:"10s"`
}

// DatabaseConfig holds the datastore connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds regional configuration for SSM, CloudWatch and SQS.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// ReconcileQueueURL receives re-sync requests for records whose optimistic
	// write was lost. Empty disables queueing.
	ReconcileQueueURL string `envconfig:"RECONCILE_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds the payment processor credentials, the price catalog
// and per-tier quotas.
type BillingConfig struct {
	StripeSecretKey SecretString  `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeAPIBase   string        `envconfig:"STRIPE_API_BASE" default:"https://api.stripe.com" validate:"url"`
	StripeTimeout   time.Duration `envconfig:"STRIPE_TIMEOUT" default:"20s"`

	PriceProfessionalMonthly string `envconfig:"STRIPE_PRICE_PROFESSIONAL_MONTHLY" validate:"required"`
	PriceProfessionalAnnual  string `envconfig:"STRIPE_PRICE_PROFESSIONAL_ANNUAL" validate:"required"`
	PricePremiumMonthly      string `envconfig:"STRIPE_PRICE_PREMIUM_MONTHLY" validate:"required"`
	PricePremiumAnnual       string `envconfig:"STRIPE_PRICE_PREMIUM_ANNUAL" validate:"required"`

	// -1 means unlimited.
	FreeMonthlyLimit         int `envconfig:"FREE_MONTHLY_LIMIT" default:"10" validate:"gte=-1"`
	ProfessionalMonthlyLimit int `envconfig:"PROFESSIONAL_MONTHLY_LIMIT" default:"100" validate:"gte=-1"`
	PremiumMonthlyLimit      int `envconfig:"PREMIUM_MONTHLY_LIMIT" default:"-1" validate:"gte=-1"`

	// IdempotencyWindow is the bucket width for checkout idempotency keys.
	IdempotencyWindow time.Duration `envconfig:"IDEMPOTENCY_WINDOW" default:"1m" validate:"gt=0"`
	DefaultCurrency   string        `envconfig:"DEFAULT_CURRENCY" default:"usd" validate:"len=3"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ClientDesk"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
