package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/matchanah/storefront/internal/cache"
	"github.com/matchanah/storefront/internal/db"
	"github.com/matchanah/storefront/internal/logging"
	"github.com/matchanah/storefront/internal/models"
	"github.com/matchanah/storefront/internal/observability"
	"github.com/matchanah/storefront/internal/payos"
)

var (
	ErrPendingPaymentMissing = errors.New("no pending payment for session")
	ErrCallbackMismatch      = errors.New("payment callback does not match pending payment")
	ErrPollTimeout           = errors.New("payment polling budget exhausted")
	ErrPaymentNotRequired    = errors.New("order does not settle through the gateway")
)

// ReconcileState is the terminal classification of a reconciliation
// attempt.
type ReconcileState string

const (
	StatePaid      ReconcileState = "paid"
	StateCancelled ReconcileState = "cancelled"
	StateFailed    ReconcileState = "failed"
	StateTimedOut  ReconcileState = "timed_out"
	StatePending   ReconcileState = "pending"
)

// ReconcileResult is what a redirect or polling pass concluded about
// an order's payment.
type ReconcileResult struct {
	State ReconcileState
	Order *models.Order
}

// PollObserver is invoked once per polling attempt.
type PollObserver func(attempt int, status payos.LinkStatus)

// PendingPayment is the cached record of a payment link awaiting
// settlement.
type PendingPayment struct {
	OrderID       string    `json:"order_id"`
	OrderCode     int64     `json:"order_code"`
	PaymentLinkID string    `json:"payment_link_id"`
	CheckoutURL   string    `json:"checkout_url"`
	QRCode        string    `json:"qr_code"`
	QRImage       string    `json:"qr_image,omitempty"`
	Amount        int64     `json:"amount"`
	AccountName   string    `json:"account_name,omitempty"`
	AccountNumber string    `json:"account_number,omitempty"`
	BIN           string    `json:"bin,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type paymentOrderStore interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByGatewayCode(ctx context.Context, orderCode int64) (*models.Order, error)
	SetGatewayOrderCode(ctx context.Context, orderID uuid.UUID, orderCode int64) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, transactionID string) error
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error
}

type paymentGateway interface {
	CreatePaymentLink(ctx context.Context, req payos.CreateLinkRequest) (payos.PaymentLink, error)
	GetPaymentStatus(ctx context.Context, orderCode int64) (payos.PaymentDetails, error)
}

const (
	pendingPaymentTTL = 5 * time.Minute
	pollInterval      = 5 * time.Second
	maxPollAttempts   = 60
)

// PaymentService drives the payment lifecycle: link creation, redirect
// reconciliation, and status polling. Payment confirmation funnels
// through the store's idempotent MarkPaid, so the redirect handler and
// the poller can race freely.
type PaymentService struct {
	orders      paymentOrderStore
	gateway     paymentGateway
	cache       cache.Provider
	emailSender OrderEmailSender
	returnURL   string
	cancelURL   string
	logger      *slog.Logger

	inflight singleflight.Group

	// overridable in tests
	pollInterval    time.Duration
	maxPollAttempts int
	generateCode    func() int64
}

func NewPaymentService(orders paymentOrderStore, gateway paymentGateway, cacheProvider cache.Provider, emailSender OrderEmailSender, returnURL, cancelURL string, logger *slog.Logger) *PaymentService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}

	return &PaymentService{
		orders:          orders,
		gateway:         gateway,
		cache:           cacheProvider,
		emailSender:     emailSender,
		returnURL:       returnURL,
		cancelURL:       cancelURL,
		logger:          logger,
		pollInterval:    pollInterval,
		maxPollAttempts: maxPollAttempts,
		generateCode:    payos.GenerateOrderCode,
	}
}

func (s *PaymentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// EnsurePaymentLink returns the payment link for the session's order,
// creating one at the gateway only when no fresh link exists.
// Concurrent calls for the same session coalesce onto a single flight,
// so double-clicking "Pay" never mints two gateway order codes.
func (s *PaymentService) EnsurePaymentLink(ctx context.Context, sessionID string, orderID uuid.UUID) (*PendingPayment, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	result, err, _ := s.inflight.Do(sessionID, func() (any, error) {
		return s.ensurePaymentLink(ctx, sessionID, orderID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*PendingPayment), nil
}

func (s *PaymentService) ensurePaymentLink(ctx context.Context, sessionID string, orderID uuid.UUID) (*PendingPayment, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.ensure_link",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("EnsurePaymentLink"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return nil, fmt.Errorf("order %s is already paid", order.OrderNumber)
	}
	if order.Status == models.StatusCancelled {
		return nil, fmt.Errorf("%w: order %s is cancelled", db.ErrInvalidStatusTransition, order.OrderNumber)
	}
	if !order.PaymentMethod.RequiresGateway() {
		return nil, fmt.Errorf("%w: method %s", ErrPaymentNotRequired, order.PaymentMethod)
	}

	if pending, ok := s.freshPendingPayment(ctx, sessionID, order); ok {
		meter.Count("payment.link.reused", 1)
		return pending, nil
	}

	orderCode := order.GatewayOrderCode
	if orderCode == 0 {
		orderCode = s.generateCode()
		if err := s.orders.SetGatewayOrderCode(ctx, order.ID, orderCode); err != nil {
			if !errors.Is(err, db.ErrGatewayCodeAssigned) {
				return nil, err
			}
			// Lost a race with another writer; use the persisted code.
			order, err = s.orders.GetByID(ctx, order.ID)
			if err != nil {
				return nil, err
			}
			orderCode = order.GatewayOrderCode
		}
	}

	items := make([]payos.Item, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payos.Item{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	link, err := s.gateway.CreatePaymentLink(ctx, payos.CreateLinkRequest{
		OrderCode:   orderCode,
		Amount:      order.Total,
		Description: payos.ClampDescription(fmt.Sprintf("DH%d", orderCode)),
		Items:       items,
		ReturnURL:   s.returnURL,
		CancelURL:   s.cancelURL,
	})
	if err != nil {
		meter.Count("payment.link.failed", 1)
		return nil, err
	}
	meter.Count("payment.link.created", 1, sentry.WithAttributes(
		attribute.String("method", string(order.PaymentMethod)),
	))

	pending := &PendingPayment{
		OrderID:       order.ID.String(),
		OrderCode:     orderCode,
		PaymentLinkID: link.PaymentLinkID,
		CheckoutURL:   link.CheckoutURL,
		QRCode:        link.QRCode,
		Amount:        link.Amount,
		AccountName:   link.AccountName,
		AccountNumber: link.AccountNumber,
		BIN:           link.BIN,
		CreatedAt:     time.Now().UTC(),
	}

	if image, err := payos.RenderQRImage(link.QRCode); err == nil {
		pending.QRImage = image
	} else {
		logger.Warn("failed to render payment QR image", "error", err)
	}

	s.storePendingPayment(ctx, sessionID, pending)

	logger.Info("payment link created",
		"order_number", order.OrderNumber,
		"order_code", orderCode,
		"amount", link.Amount,
	)
	return pending, nil
}

// HandleReturn reconciles the gateway's redirect callback. The query
// parameters are attacker-controllable, so nothing is trusted until it
// matches the pending record and the gateway's own status endpoint
// confirms it.
func (s *PaymentService) HandleReturn(ctx context.Context, sessionID string, params payos.ReturnParams) (*ReconcileResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.handle_return",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("HandleReturn"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	pending, err := s.loadPendingPayment(ctx, sessionID)
	if err != nil {
		if params.Cancel && params.OrderCode != 0 {
			// Cancelled after the pending record expired. Resolve by
			// gateway code so the order still gets released.
			return s.cancelByOrderCode(ctx, sessionID, params.OrderCode)
		}
		return nil, err
	}

	if params.Cancel || params.Status == payos.LinkStatusCancelled {
		meter.Count("payment.return.cancelled", 1)
		return s.resolveCancelled(ctx, sessionID, pending)
	}

	if params.OrderCode != 0 && params.OrderCode != pending.OrderCode {
		meter.Count("payment.return.mismatch", 1)
		return nil, fmt.Errorf("%w: order code %d, expected %d", ErrCallbackMismatch, params.OrderCode, pending.OrderCode)
	}
	if params.Amount != 0 && params.Amount != pending.Amount {
		meter.Count("payment.return.mismatch", 1)
		return nil, fmt.Errorf("%w: amount %d, expected %d", ErrCallbackMismatch, params.Amount, pending.Amount)
	}

	// Redirect params are a hint, not proof. Settlement is confirmed
	// against the gateway directly.
	details, err := s.gateway.GetPaymentStatus(ctx, pending.OrderCode)
	if err != nil {
		var rejected *payos.GatewayRejectedError
		if errors.As(err, &rejected) {
			// The gateway no longer recognizes the payment request.
			// Nothing to reconcile against; the link is dead.
			meter.Count("payment.return.rejected", 1)
			return &ReconcileResult{State: StateFailed}, err
		}
		return nil, err
	}

	switch details.Status {
	case payos.LinkStatusPaid:
		if details.Amount != 0 && details.Amount != pending.Amount {
			meter.Count("payment.return.mismatch", 1)
			return nil, fmt.Errorf("%w: gateway amount %d, expected %d", ErrCallbackMismatch, details.Amount, pending.Amount)
		}
		result, err := s.confirmPaid(ctx, sessionID, pending, details)
		if err == nil {
			meter.Count("payment.return.confirmed", 1)
		}
		return result, err
	case payos.LinkStatusCancelled, payos.LinkStatusExpired:
		meter.Count("payment.return.cancelled", 1)
		return s.resolveCancelled(ctx, sessionID, pending)
	default:
		logger.Info("payment not yet settled on return",
			"order_code", pending.OrderCode,
			"status", details.Status,
		)
		return &ReconcileResult{State: StatePending}, nil
	}
}

// PollUntilPaid watches the gateway until the payment reaches a
// terminal state or the attempt budget runs out. It is the fallback
// for customers who paid but never came back through the redirect.
func (s *PaymentService) PollUntilPaid(ctx context.Context, sessionID string, orderCode int64, observer PollObserver) (*ReconcileResult, error) {
	logger := s.loggerFromContext(ctx)

	pending, err := s.loadPendingPayment(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if orderCode != 0 && orderCode != pending.OrderCode {
		return nil, fmt.Errorf("%w: order code %d, expected %d", ErrCallbackMismatch, orderCode, pending.OrderCode)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		details, err := s.gateway.GetPaymentStatus(ctx, pending.OrderCode)
		if err != nil {
			logger.Warn("payment status check failed",
				"order_code", pending.OrderCode,
				"attempt", attempt,
				"error", err,
			)
			// The attempt still happened and still spent budget; the
			// observer sees it with an empty status.
			if observer != nil {
				observer(attempt, "")
			}
			continue
		}

		if observer != nil {
			observer(attempt, details.Status)
		}

		switch details.Status {
		case payos.LinkStatusPaid:
			if details.Amount != 0 && details.Amount != pending.Amount {
				return nil, fmt.Errorf("%w: gateway amount %d, expected %d", ErrCallbackMismatch, details.Amount, pending.Amount)
			}
			return s.confirmPaid(ctx, sessionID, pending, details)
		case payos.LinkStatusCancelled, payos.LinkStatusExpired:
			return s.resolveCancelled(ctx, sessionID, pending)
		}
	}

	return &ReconcileResult{State: StateTimedOut}, ErrPollTimeout
}

// ConfirmWebhook settles an order from a gateway webhook event. The
// handler has already verified the payload signature; the outcome is
// still re-confirmed against the gateway before the order moves.
// Webhooks carry no browsing session, so the order is found through its
// gateway code alone.
func (s *PaymentService) ConfirmWebhook(ctx context.Context, orderCode int64, success bool) (*ReconcileResult, error) {
	span := sentry.StartSpan(ctx, "function",
		sentry.WithOpName("payment.confirm_webhook"),
		sentry.WithDescription("PaymentService.ConfirmWebhook"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	order, err := s.orders.GetByGatewayCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}

	pending := &PendingPayment{
		OrderID:   order.ID.String(),
		OrderCode: orderCode,
		Amount:    order.Total,
	}

	if !success {
		return s.resolveCancelled(ctx, "", pending)
	}

	details, err := s.gateway.GetPaymentStatus(ctx, orderCode)
	if err != nil {
		return nil, err
	}

	switch details.Status {
	case payos.LinkStatusPaid:
		if details.Amount != 0 && details.Amount != order.Total {
			return nil, fmt.Errorf("%w: gateway reports amount %d, order total is %d",
				ErrCallbackMismatch, details.Amount, order.Total)
		}
		return s.confirmPaid(ctx, "", pending, details)
	case payos.LinkStatusCancelled, payos.LinkStatusExpired:
		return s.resolveCancelled(ctx, "", pending)
	default:
		return &ReconcileResult{State: StatePending, Order: order}, nil
	}
}

// confirmPaid marks the order paid and notifies the customer. MarkPaid
// is idempotent at the store level, so arriving here twice is safe.
func (s *PaymentService) confirmPaid(ctx context.Context, sessionID string, pending *PendingPayment, details payos.PaymentDetails) (*ReconcileResult, error) {
	logger := s.loggerFromContext(ctx)

	order, err := s.resolveOrder(ctx, pending)
	if err != nil {
		return nil, err
	}

	alreadyPaid := order.IsPaid()

	if err := s.orders.MarkPaid(ctx, order.ID, details.TransactionID()); err != nil {
		return nil, err
	}

	order, err = s.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	s.cleanup(ctx, sessionID, pending)

	if !alreadyPaid {
		if err := s.emailSender.SendPaymentReceived(ctx, order); err != nil {
			logger.Warn("failed to send payment received email",
				"order_number", order.OrderNumber,
				"error", err,
			)
		}
		logger.Info("payment confirmed",
			"order_number", order.OrderNumber,
			"order_code", pending.OrderCode,
			"transaction_id", details.TransactionID(),
		)
	}

	return &ReconcileResult{State: StatePaid, Order: order}, nil
}

func (s *PaymentService) resolveCancelled(ctx context.Context, sessionID string, pending *PendingPayment) (*ReconcileResult, error) {
	logger := s.loggerFromContext(ctx)

	order, err := s.resolveOrder(ctx, pending)
	if err != nil {
		return nil, err
	}

	if err := s.orders.CancelOrder(ctx, order.ID, "payment cancelled at gateway"); err != nil {
		if !errors.Is(err, db.ErrInvalidStatusTransition) {
			return nil, err
		}
		// Already past cancellable; report what the order became.
	}

	order, err = s.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	s.cleanup(ctx, sessionID, pending)

	logger.Info("payment cancelled",
		"order_number", order.OrderNumber,
		"order_code", pending.OrderCode,
	)
	return &ReconcileResult{State: StateCancelled, Order: order}, nil
}

// cancelByOrderCode handles a cancel redirect that arrives after the
// pending record expired. With no record to cross-validate against,
// the redirect's order code proves nothing on its own; only the
// gateway's status decides what happens to the order.
func (s *PaymentService) cancelByOrderCode(ctx context.Context, sessionID string, orderCode int64) (*ReconcileResult, error) {
	order, err := s.orders.GetByGatewayCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	pending := &PendingPayment{
		OrderID:   order.ID.String(),
		OrderCode: orderCode,
		Amount:    order.Total,
	}

	details, err := s.gateway.GetPaymentStatus(ctx, orderCode)
	if err != nil {
		return nil, err
	}

	switch details.Status {
	case payos.LinkStatusCancelled, payos.LinkStatusExpired:
		return s.resolveCancelled(ctx, sessionID, pending)
	case payos.LinkStatusPaid:
		// The customer cancelled the redirect but the money already
		// moved. Settle rather than discard the payment.
		if details.Amount != 0 && details.Amount != order.Total {
			return nil, fmt.Errorf("%w: gateway reports amount %d, order total is %d",
				ErrCallbackMismatch, details.Amount, order.Total)
		}
		return s.confirmPaid(ctx, sessionID, pending, details)
	default:
		return &ReconcileResult{State: StatePending, Order: order}, nil
	}
}

// resolveOrder finds the order a pending payment belongs to: the
// stored order id first, the gateway code as fallback.
func (s *PaymentService) resolveOrder(ctx context.Context, pending *PendingPayment) (*models.Order, error) {
	if pending.OrderID != "" {
		if orderID, err := uuid.Parse(pending.OrderID); err == nil {
			order, err := s.orders.GetByID(ctx, orderID)
			if err == nil {
				return order, nil
			}
			if !errors.Is(err, db.ErrOrderNotFound) {
				return nil, err
			}
		}
	}
	return s.orders.GetByGatewayCode(ctx, pending.OrderCode)
}

func (s *PaymentService) freshPendingPayment(ctx context.Context, sessionID string, order *models.Order) (*PendingPayment, bool) {
	pending, err := s.loadPendingPayment(ctx, sessionID)
	if err != nil {
		return nil, false
	}
	if time.Since(pending.CreatedAt) > pendingPaymentTTL {
		return nil, false
	}
	if pending.OrderID != order.ID.String() {
		// The session moved on to a different order; its old link must
		// not settle the new one.
		return nil, false
	}
	if pending.Amount != order.Total {
		// Cart changed since the link was created; the stale link must
		// not be reused.
		return nil, false
	}
	if order.GatewayOrderCode != 0 && pending.OrderCode != order.GatewayOrderCode {
		return nil, false
	}
	return pending, true
}

func (s *PaymentService) loadPendingPayment(ctx context.Context, sessionID string) (*PendingPayment, error) {
	raw, err := s.cache.Get(ctx, cache.PendingPaymentKey(sessionID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrPendingPaymentMissing
		}
		return nil, err
	}

	var pending PendingPayment
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, fmt.Errorf("corrupt pending payment record: %w", err)
	}
	return &pending, nil
}

func (s *PaymentService) storePendingPayment(ctx context.Context, sessionID string, pending *PendingPayment) {
	logger := s.loggerFromContext(ctx)

	raw, err := json.Marshal(pending)
	if err != nil {
		logger.Warn("failed to encode pending payment record", "error", err)
		return
	}
	if err := s.cache.Set(ctx, cache.PendingPaymentKey(sessionID), string(raw), pendingPaymentTTL); err != nil {
		logger.Warn("failed to cache pending payment record", "error", err)
	}
	if err := s.cache.Set(ctx, cache.GatewayCodeKey(pending.OrderCode), pending.OrderID, pendingPaymentTTL); err != nil {
		logger.Warn("failed to cache gateway code mapping", "error", err)
	}
}

// cleanup drops the session's short-lived payment state once a
// terminal outcome is known.
func (s *PaymentService) cleanup(ctx context.Context, sessionID string, pending *PendingPayment) {
	if sessionID != "" {
		_ = s.cache.Delete(ctx, cache.PendingPaymentKey(sessionID))
		_ = s.cache.Delete(ctx, cache.CheckoutSessionKey(sessionID))
	}
	if pending.OrderCode != 0 {
		_ = s.cache.Delete(ctx, cache.GatewayCodeKey(pending.OrderCode))
	}
}
