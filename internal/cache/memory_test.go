package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProvider(t *testing.T) {
	t.Parallel()

	provider, err := NewMemoryProvider()
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Close() })

	ctx := context.Background()

	t.Run("miss returns ErrNotFound", func(t *testing.T) {
		_, err := provider.Get(ctx, "absent")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		if err := provider.Set(ctx, "k", "v", time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := provider.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != "v" {
			t.Errorf("Get = %q, want %q", got, "v")
		}
	})

	t.Run("expired entry is a miss", func(t *testing.T) {
		if err := provider.Set(ctx, "ephemeral", "v", -time.Second); err != nil {
			t.Fatalf("Set: %v", err)
		}
		_, err := provider.Get(ctx, "ephemeral")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete removes entry", func(t *testing.T) {
		if err := provider.Set(ctx, "doomed", "v", time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := provider.Delete(ctx, "doomed"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := provider.Get(ctx, "doomed")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestCacheKeys(t *testing.T) {
	t.Parallel()

	if got := PendingPaymentKey("ord-1"); got != "payment:pending:ord-1" {
		t.Errorf("PendingPaymentKey = %q", got)
	}
	if got := GatewayCodeKey(1700000000123); got != "payment:code:1700000000123" {
		t.Errorf("GatewayCodeKey = %q", got)
	}
	if got := CheckoutSessionKey("sess"); got != "checkout:session:sess" {
		t.Errorf("CheckoutSessionKey = %q", got)
	}
	if got := WebhookKey("payos", "evt"); got != "webhook:payos:evt" {
		t.Errorf("WebhookKey = %q", got)
	}
}
