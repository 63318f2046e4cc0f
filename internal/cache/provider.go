package cache

// Package cache stores short-lived storefront state: pending payment
// links awaiting reconciliation, checkout sessions, and processed
// webhook event IDs for idempotency.

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Provider is a string-valued TTL cache. Values larger than a scalar
// are stored as JSON by the caller.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// PendingPaymentKey indexes the payment link created for a checkout
// session, so a repeated attempt reuses the link instead of minting a
// new gateway order code.
func PendingPaymentKey(sessionID string) string {
	return fmt.Sprintf("payment:pending:%s", sessionID)
}

// GatewayCodeKey maps a gateway order code back to the storefront
// order that owns it, for redirect handling when the order ID is not
// present in the callback.
func GatewayCodeKey(orderCode int64) string {
	return fmt.Sprintf("payment:code:%d", orderCode)
}

// CheckoutSessionKey holds the in-progress checkout draft for a
// browsing session.
func CheckoutSessionKey(sessionID string) string {
	return fmt.Sprintf("checkout:session:%s", sessionID)
}

// WebhookKey marks a gateway webhook event as processed.
func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}
