package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	PayOSClientID    string `env:"PAYOS_CLIENT_ID,required" validate:"required"`
	PayOSAPIKey      string `env:"PAYOS_API_KEY,required" validate:"required"`
	PayOSChecksumKey string `env:"PAYOS_CHECKSUM_KEY,required" validate:"required"`
	PayOSBaseURL     string `env:"PAYOS_BASE_URL" validate:"omitempty,url"`

	BaseURL          string `env:"BASE_URL,required" validate:"required,url"`
	PaymentReturnURL string `env:"PAYMENT_RETURN_URL" validate:"omitempty,url"`
	PaymentCancelURL string `env:"PAYMENT_CANCEL_URL" validate:"omitempty,url"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	SessionStoreProvider  string `env:"SESSION_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=SessionStoreProvider redis"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM" envDefault:"orders@matchanah.store" validate:"omitempty,email"`

	SentryDSN string `env:"SENTRY_DSN"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	return nil
}

// ReturnURL is where the gateway redirects the customer after payment.
// An explicit PAYMENT_RETURN_URL wins; otherwise it is derived from
// BASE_URL.
func (c *Config) ReturnURL() string {
	if c.PaymentReturnURL != "" {
		return c.PaymentReturnURL
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/payment-return"
}

// CancelURL is where the gateway sends the customer when they abandon
// the hosted payment page.
func (c *Config) CancelURL() string {
	if c.PaymentCancelURL != "" {
		return c.PaymentCancelURL
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/cart"
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
