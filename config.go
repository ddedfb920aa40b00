package breeze

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Environment selects the backend and the token trust anchor
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

// Valid reports whether e is a known environment
func (e Environment) Valid() bool {
	return e == EnvironmentProduction || e == EnvironmentSandbox
}

// LiveMode is true only for production
func (e Environment) LiveMode() bool {
	return e == EnvironmentProduction
}

// Defaults
const (
	DefaultPaymentPath        = "breeze-payment"
	DefaultCompletePath       = "complete"
	DefaultPollInterval       = 30 * time.Second
	DefaultPendingTimeout     = 300 * time.Second
	DefaultRequestTimeout     = 30 * time.Second
	DefaultDeliveredRetention = 24 * time.Hour
	DefaultPollConcurrency    = 4
)

// Config holds everything the engine and its collaborators need.
// It is set once and read-only afterwards.
type Config struct {
	// Required
	APIKey    string `env:"API_KEY"`
	AppScheme string `env:"APP_SCHEME"`

	// Identity of the purchasing user
	UserID    string `env:"USER_ID"`
	UserEmail string `env:"USER_EMAIL"`

	Environment Environment `env:"ENVIRONMENT" envDefault:"production"`
	// BaseURL overrides the backend URL derived from Environment
	BaseURL string `env:"BASE_URL"`
	// PaymentPath is the deep-link host or last path segment the payment page redirects to
	PaymentPath string `env:"PAYMENT_PATH" envDefault:"breeze-payment"`
	// CompletePath is accepted as a payment return link for universal links
	CompletePath string `env:"COMPLETE_PATH" envDefault:"complete"`

	PollInterval       time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	PendingTimeout     time.Duration `env:"PENDING_TIMEOUT" envDefault:"300s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	DeliveredRetention time.Duration `env:"DELIVERED_RETENTION" envDefault:"24h"`
	PollConcurrency    int           `env:"POLL_CONCURRENCY" envDefault:"4"`
}

// LoadConfigFromEnv parses a Config from BREEZE_-prefixed environment variables
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "BREEZE_"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values for configs built in code
func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvironmentProduction
	}
	if c.PaymentPath == "" {
		c.PaymentPath = DefaultPaymentPath
	}
	if c.CompletePath == "" {
		c.CompletePath = DefaultCompletePath
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PendingTimeout == 0 {
		c.PendingTimeout = DefaultPendingTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.DeliveredRetention == 0 {
		c.DeliveredRetention = DefaultDeliveredRetention
	}
	if c.PollConcurrency == 0 {
		c.PollConcurrency = DefaultPollConcurrency
	}
}

// Validate checks if the config has all required fields
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	if c.AppScheme == "" {
		return fmt.Errorf("%w: app scheme is required", ErrInvalidConfig)
	}
	if !c.Environment.Valid() {
		return fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, c.Environment)
	}
	if c.PollInterval <= 0 || c.PendingTimeout <= 0 || c.RequestTimeout <= 0 || c.DeliveredRetention <= 0 {
		return fmt.Errorf("%w: durations must be positive", ErrInvalidConfig)
	}
	if c.PollConcurrency <= 0 {
		return fmt.Errorf("%w: poll concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}

// RedirectURL is the deep link the payment page returns to
func (c *Config) RedirectURL() string {
	return c.AppScheme + c.PaymentPath
}
