package services

import (
	"context"
	"errors"
	"testing"

	"github.com/matchanah/storefront/internal/db"
	"github.com/matchanah/storefront/internal/models"
)

func TestUpdateFulfillmentStatus(t *testing.T) {
	t.Parallel()

	store := newFakeOrderStore()
	emails := &recordingEmailSender{}
	svc := NewAdminService(store, emails, discardLogger())
	ctx := context.Background()

	order := seedGatewayOrder(t, store)

	updated, err := svc.UpdateFulfillmentStatus(ctx, order.ID, "confirmed", "payment verified manually")
	if err != nil {
		t.Fatalf("UpdateFulfillmentStatus: %v", err)
	}
	if updated.Status != models.StatusConfirmed {
		t.Errorf("Status = %q, want confirmed", updated.Status)
	}
	if len(updated.StatusHistory) == 0 {
		t.Error("status change not recorded in history")
	}

	// pending -> shipped skips intermediate states
	if _, err := svc.UpdateFulfillmentStatus(ctx, order.ID, "delivered", ""); !errors.Is(err, db.ErrInvalidStatusTransition) {
		t.Fatalf("error = %v, want ErrInvalidStatusTransition", err)
	}

	if _, err := svc.UpdateFulfillmentStatus(ctx, order.ID, "processing", ""); err != nil {
		t.Fatalf("confirmed -> processing: %v", err)
	}
	shipped, err := svc.UpdateFulfillmentStatus(ctx, order.ID, "shipped", "GHN tracking 123")
	if err != nil {
		t.Fatalf("processing -> shipped: %v", err)
	}
	if shipped.Status != models.StatusShipped {
		t.Errorf("Status = %q, want shipped", shipped.Status)
	}
	if len(emails.shipments) != 1 {
		t.Errorf("shipment emails = %d, want 1", len(emails.shipments))
	}
}

func TestUpdateFulfillmentStatus_RejectsUnknownAndCancel(t *testing.T) {
	t.Parallel()

	store := newFakeOrderStore()
	svc := NewAdminService(store, nil, discardLogger())
	ctx := context.Background()

	order := seedGatewayOrder(t, store)

	if _, err := svc.UpdateFulfillmentStatus(ctx, order.ID, "teleported", ""); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if _, err := svc.UpdateFulfillmentStatus(ctx, order.ID, "cancelled", ""); !errors.Is(err, db.ErrInvalidStatusTransition) {
		t.Fatalf("cancel through status update: error = %v, want ErrInvalidStatusTransition", err)
	}
}

func TestAdminCancelOrder(t *testing.T) {
	t.Parallel()

	store := newFakeOrderStore()
	svc := NewAdminService(store, nil, discardLogger())
	ctx := context.Background()

	order := seedGatewayOrder(t, store)

	cancelled, err := svc.CancelOrder(ctx, order.ID, "customer request")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", cancelled.Status)
	}
	if cancelled.CancelReason != "customer request" {
		t.Errorf("CancelReason = %q", cancelled.CancelReason)
	}
	if cancelled.CancelledAt.IsZero() {
		t.Error("CancelledAt not stamped")
	}

	shipped := seedGatewayOrder(t, store)
	for _, next := range []string{"confirmed", "processing", "shipped"} {
		if _, err := svc.UpdateFulfillmentStatus(ctx, shipped.ID, next, ""); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	if _, err := svc.CancelOrder(ctx, shipped.ID, "too late"); !errors.Is(err, db.ErrInvalidStatusTransition) {
		t.Fatalf("cancel shipped order: error = %v, want ErrInvalidStatusTransition", err)
	}
}

func TestOrderStats(t *testing.T) {
	t.Parallel()

	store := newFakeOrderStore()
	svc := NewAdminService(store, nil, discardLogger())
	ctx := context.Background()

	paid := seedGatewayOrder(t, store)
	if err := store.MarkPaid(ctx, paid.ID, "FT1"); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	cancelledPaid := seedGatewayOrder(t, store)
	if err := store.MarkPaid(ctx, cancelledPaid.ID, "FT2"); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	// A refund scenario: cancelled after payment must not count as revenue.
	store.mu.Lock()
	store.orders[cancelledPaid.ID].Status = models.StatusCancelled
	store.mu.Unlock()

	seedGatewayOrder(t, store) // unpaid pending

	stats, err := svc.OrderStats(ctx)
	if err != nil {
		t.Fatalf("OrderStats: %v", err)
	}
	if stats.TotalOrders != 3 {
		t.Errorf("TotalOrders = %d, want 3", stats.TotalOrders)
	}
	if stats.Revenue != 390000 {
		t.Errorf("Revenue = %d, want 390000 (cancelled order excluded)", stats.Revenue)
	}
	if stats.PendingPayment != 1 {
		t.Errorf("PendingPayment = %d, want 1", stats.PendingPayment)
	}
}
