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

	"github.com/matchanah/storefront/internal/cache"
	"github.com/matchanah/storefront/internal/logging"
	"github.com/matchanah/storefront/internal/models"
	"github.com/matchanah/storefront/internal/observability"
)

var ErrEmptyCart = errors.New("cart is empty")

type checkoutOrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// CartItem is one line of the customer's cart as submitted at
// checkout. The unit price arrives with the cart snapshot; line and
// order totals are always recomputed from it server-side.
type CartItem struct {
	ProductID    string
	ProductName  string
	ProductImage string
	Quantity     int
	Price        int64
}

// PlaceOrderInput carries everything needed to create an order.
type PlaceOrderInput struct {
	SessionID     string
	Items         []CartItem
	ShippingInfo  models.ShippingInfo
	PaymentMethod string
	ShippingCost  int64
	Tax           int64
	Identity      *Identity
}

// CheckoutSession is the cached pointer from a browsing session to its
// in-flight order, so a page reload during payment can recover it.
type CheckoutSession struct {
	OrderID   string    `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

const checkoutSessionTTL = 5 * time.Minute

// CheckoutService turns carts into persisted orders.
type CheckoutService struct {
	orders      checkoutOrderStore
	cache       cache.Provider
	emailSender OrderEmailSender
	logger      *slog.Logger
}

func NewCheckoutService(orders checkoutOrderStore, cacheProvider cache.Provider, emailSender OrderEmailSender, logger *slog.Logger) *CheckoutService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}

	return &CheckoutService{
		orders:      orders,
		cache:       cacheProvider,
		emailSender: emailSender,
		logger:      logger,
	}
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// ComputeTotals derives the order amounts from the cart. Client-sent
// totals are never used.
func ComputeTotals(items []CartItem, shippingCost, tax int64) (subtotal, total int64) {
	for _, item := range items {
		subtotal += int64(item.Quantity) * item.Price
	}
	return subtotal, subtotal + shippingCost + tax
}

// PlaceOrder validates the cart and persists a new order. Orders that
// settle through the gateway stay unpaid here; the payment flow takes
// over afterwards. COD orders get their confirmation email right away.
func (s *CheckoutService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.place_order",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("PlaceOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if len(input.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if err := input.ShippingInfo.Validate(); err != nil {
		return nil, err
	}
	method, err := models.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if input.ShippingCost < 0 || input.Tax < 0 {
		return nil, fmt.Errorf("shipping cost and tax must not be negative")
	}

	items := make([]models.OrderItem, 0, len(input.Items))
	for i, line := range input.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be positive", i)
		}
		if line.Price < 0 {
			return nil, fmt.Errorf("item %d: price must not be negative", i)
		}
		items = append(items, models.OrderItem{
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			ProductImage: line.ProductImage,
			Quantity:     line.Quantity,
			Price:        line.Price,
			Total:        int64(line.Quantity) * line.Price,
		})
	}

	subtotal, total := ComputeTotals(input.Items, input.ShippingCost, input.Tax)

	order := &models.Order{
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentUnpaid,
		PaymentMethod: method,
		Items:         items,
		Subtotal:      subtotal,
		ShippingCost:  input.ShippingCost,
		Tax:           input.Tax,
		Total:         total,
		ShippingInfo:  input.ShippingInfo,
	}
	if input.Identity != nil {
		order.UserID = input.Identity.UserID
		order.UserEmail = input.Identity.Email
	}

	if err := s.orders.Create(ctx, order); err != nil {
		meter.Count("checkout.order.failed", 1)
		return nil, err
	}
	meter.Count("checkout.order.placed", 1, sentry.WithAttributes(
		attribute.String("method", string(method)),
	))

	if input.SessionID != "" {
		s.storeCheckoutSession(ctx, input.SessionID, order.ID)
	}

	if !method.RequiresGateway() {
		if err := s.emailSender.SendOrderConfirmation(ctx, order); err != nil {
			logger.Warn("failed to send order confirmation email",
				"order_number", order.OrderNumber,
				"error", err,
			)
		}
	}

	logger.Info("order placed",
		"order_number", order.OrderNumber,
		"method", method,
		"total", total,
	)
	return order, nil
}

// RecoverSession returns the order attached to an in-flight checkout
// session, if one exists.
func (s *CheckoutService) RecoverSession(ctx context.Context, sessionID string) (*models.Order, error) {
	raw, err := s.cache.Get(ctx, cache.CheckoutSessionKey(sessionID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrPendingPaymentMissing
		}
		return nil, err
	}

	var session CheckoutSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("corrupt checkout session record: %w", err)
	}

	orderID, err := uuid.Parse(session.OrderID)
	if err != nil {
		return nil, fmt.Errorf("corrupt checkout session record: %w", err)
	}
	return s.orders.GetByID(ctx, orderID)
}

func (s *CheckoutService) storeCheckoutSession(ctx context.Context, sessionID string, orderID uuid.UUID) {
	logger := s.loggerFromContext(ctx)

	raw, err := json.Marshal(CheckoutSession{
		OrderID:   orderID.String(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("failed to encode checkout session record", "error", err)
		return
	}
	if err := s.cache.Set(ctx, cache.CheckoutSessionKey(sessionID), string(raw), checkoutSessionTTL); err != nil {
		logger.Warn("failed to cache checkout session record", "error", err)
	}
}
