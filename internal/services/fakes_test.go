package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matchanah/storefront/internal/db"
	"github.com/matchanah/storefront/internal/models"
	"github.com/matchanah/storefront/internal/payos"
)

// fakeOrderStore mirrors the store's guarded-update semantics in
// memory so the services can be exercised without a database.
type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order

	paidTransitions int
	markPaidCalls   int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[uuid.UUID]*models.Order)}
}

func (f *fakeOrderStore) Create(ctx context.Context, order *models.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = fmt.Sprintf("ORD-TEST-%06d", len(f.orders)+1)
	}
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.PaymentUnpaid
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.PaymentStatus == models.PaymentPaid && order.PaidAt.IsZero() {
		order.PaidAt = now
	}

	f.orders[order.ID] = cloneOrder(order)
	return nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (f *fakeOrderStore) GetByGatewayCode(ctx context.Context, orderCode int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, order := range f.orders {
		if order.GatewayOrderCode == orderCode {
			return cloneOrder(order), nil
		}
	}
	return nil, db.ErrOrderNotFound
}

func (f *fakeOrderStore) SetGatewayOrderCode(ctx context.Context, orderID uuid.UUID, orderCode int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if order.GatewayOrderCode == 0 || order.GatewayOrderCode == orderCode {
		order.GatewayOrderCode = orderCode
		return nil
	}
	return db.ErrGatewayCodeAssigned
}

func (f *fakeOrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.markPaidCalls++

	order, ok := f.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if order.PaymentStatus == models.PaymentPaid {
		return nil
	}
	if order.Status == models.StatusCancelled {
		return db.ErrInvalidStatusTransition
	}

	f.paidTransitions++
	order.PaymentStatus = models.PaymentPaid
	order.PaymentTransactionID = transactionID
	order.PaidAt = time.Now().UTC()
	if order.Status == models.StatusPending {
		order.Status = models.StatusConfirmed
	}
	return nil
}

func (f *fakeOrderStore) UpdateStatus(ctx context.Context, orderID uuid.UUID, next models.OrderStatus, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if !order.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", db.ErrInvalidStatusTransition, order.Status, next)
	}
	order.Status = next
	order.StatusHistory = append(order.StatusHistory, models.StatusChange{
		Status:    next,
		Notes:     notes,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (f *fakeOrderStore) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if order.Status == models.StatusCancelled {
		return nil
	}
	if !order.Status.CanCancel() {
		return fmt.Errorf("%w: cannot cancel order in status %s", db.ErrInvalidStatusTransition, order.Status)
	}
	order.Status = models.StatusCancelled
	order.CancelReason = reason
	order.CancelledAt = time.Now().UTC()
	return nil
}

func (f *fakeOrderStore) List(ctx context.Context, filter db.Filter) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Order
	for _, order := range f.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && order.PaymentStatus != filter.PaymentStatus {
			continue
		}
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	return out, nil
}

func (f *fakeOrderStore) Stats(ctx context.Context) (*db.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := &db.Stats{CountsByStatus: make(map[models.OrderStatus]int64)}
	for _, order := range f.orders {
		stats.TotalOrders++
		stats.CountsByStatus[order.Status]++
		if order.PaymentStatus == models.PaymentUnpaid && order.Status != models.StatusCancelled && order.Status != models.StatusRefunded {
			stats.PendingPayment++
		}
		if order.PaymentStatus == models.PaymentPaid && order.Status != models.StatusCancelled {
			stats.Revenue += order.Total
		}
	}
	return stats, nil
}

func cloneOrder(order *models.Order) *models.Order {
	cloned := *order
	cloned.Items = append([]models.OrderItem(nil), order.Items...)
	cloned.StatusHistory = append([]models.StatusChange(nil), order.StatusHistory...)
	return &cloned
}

// fakeGateway scripts gateway responses. Statuses are consumed one per
// GetPaymentStatus call; the last one repeats.
type fakeGateway struct {
	mu            sync.Mutex
	statuses      []payos.LinkStatus
	statusCalls   int
	createCalls   int
	createErr     error
	statusErr     error
	statusErrOnce error
	paidAmount    int64
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, req payos.CreateLinkRequest) (payos.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.createCalls++
	if g.createErr != nil {
		return payos.PaymentLink{}, g.createErr
	}
	return payos.PaymentLink{
		OrderCode:     req.OrderCode,
		Amount:        req.Amount,
		Description:   req.Description,
		PaymentLinkID: fmt.Sprintf("pl_%d", req.OrderCode),
		CheckoutURL:   fmt.Sprintf("https://pay.example.com/web/pl_%d", req.OrderCode),
		QRCode:        "00020101021238570010A000000727",
		AccountName:   "MATCHANAH STORE",
		AccountNumber: "001122334455",
		BIN:           "970422",
		Currency:      "VND",
		Status:        payos.LinkStatusPending,
	}, nil
}

func (g *fakeGateway) GetPaymentStatus(ctx context.Context, orderCode int64) (payos.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.statusErrOnce != nil {
		err := g.statusErrOnce
		g.statusErrOnce = nil
		g.statusCalls++
		return payos.PaymentDetails{}, err
	}
	if g.statusErr != nil {
		g.statusCalls++
		return payos.PaymentDetails{}, g.statusErr
	}

	status := payos.LinkStatusPending
	if len(g.statuses) > 0 {
		idx := g.statusCalls
		if idx >= len(g.statuses) {
			idx = len(g.statuses) - 1
		}
		status = g.statuses[idx]
	}
	g.statusCalls++

	details := payos.PaymentDetails{
		OrderCode:     orderCode,
		PaymentLinkID: fmt.Sprintf("pl_%d", orderCode),
		Status:        status,
	}
	if status == payos.LinkStatusPaid {
		details.Amount = g.paidAmount
		details.AmountPaid = g.paidAmount
		details.Transactions = []payos.Transaction{{Reference: fmt.Sprintf("FT%d", orderCode), Amount: g.paidAmount}}
	}
	return details, nil
}
