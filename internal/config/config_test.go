package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:      "postgres://localhost:5432/storefront",
		PayOSClientID:    "client-id",
		PayOSAPIKey:      "api-key",
		PayOSChecksumKey: "checksum-key",
		BaseURL:          "https://matchanah.store",
		JWTSecret:        strings.Repeat("s", 32),
		CacheProvider:    "memory",
		LogFormat:        "text",
	}
}

func TestValidateJWTSecretLength(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.JWTSecret = "too-short"

	err := cfg.validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "JWTSecret") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCacheProvider(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.CacheProvider = "invalid"

	err := cfg.validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "CacheProvider") || !strings.Contains(err.Error(), "oneof") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRedisRequiredForRedisProviders(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.SessionStoreProvider = "redis"
	cfg.RedisConnectionString = ""

	err := cfg.validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "RedisConnectionString") || !strings.Contains(err.Error(), "required_if") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateBaseURLScheme(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"https production url", "https://matchanah.store", false},
		{"http localhost is allowed", "http://localhost:8080", false},
		{"http production url is rejected", "http://matchanah.store", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.BaseURL = tt.baseURL

			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestDerivedPaymentURLs(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.BaseURL = "https://matchanah.store/"

	if got := cfg.ReturnURL(); got != "https://matchanah.store/payment-return" {
		t.Errorf("ReturnURL = %q", got)
	}
	if got := cfg.CancelURL(); got != "https://matchanah.store/cart" {
		t.Errorf("CancelURL = %q", got)
	}

	cfg.PaymentReturnURL = "https://matchanah.store/custom-return"
	if got := cfg.ReturnURL(); got != "https://matchanah.store/custom-return" {
		t.Errorf("explicit ReturnURL = %q", got)
	}
}
