package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/matchanah/storefront/internal/db"
	"github.com/matchanah/storefront/internal/logging"
	"github.com/matchanah/storefront/internal/models"
)

type adminOrderStore interface {
	List(ctx context.Context, filter db.Filter) ([]*models.Order, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next models.OrderStatus, notes string) error
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error
	Stats(ctx context.Context) (*db.Stats, error)
}

// AdminService backs the order management console.
type AdminService struct {
	orders      adminOrderStore
	emailSender OrderEmailSender
	logger      *slog.Logger
}

func NewAdminService(orders adminOrderStore, emailSender OrderEmailSender, logger *slog.Logger) *AdminService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}

	return &AdminService{
		orders:      orders,
		emailSender: emailSender,
		logger:      logger,
	}
}

func (s *AdminService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// ListOrders returns orders matching the filter, newest first.
func (s *AdminService) ListOrders(ctx context.Context, filter db.Filter) ([]*models.Order, error) {
	return s.orders.List(ctx, filter)
}

func (s *AdminService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// UpdateFulfillmentStatus moves an order along the fulfillment
// lifecycle. The status string comes from the console UI and is parsed
// before it reaches the store; the store re-checks the transition
// against the persisted state.
func (s *AdminService) UpdateFulfillmentStatus(ctx context.Context, orderID uuid.UUID, nextStatus, notes string) (*models.Order, error) {
	logger := s.loggerFromContext(ctx)

	next, err := models.ParseOrderStatus(nextStatus)
	if err != nil {
		return nil, err
	}
	if next == models.StatusCancelled {
		return nil, fmt.Errorf("%w: use the cancel operation", db.ErrInvalidStatusTransition)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, next, notes); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if next == models.StatusShipped {
		if err := s.emailSender.SendOrderShipped(ctx, order); err != nil {
			logger.Warn("failed to send shipment email",
				"order_number", order.OrderNumber,
				"error", err,
			)
		}
	}

	logger.Info("order status updated",
		"order_number", order.OrderNumber,
		"status", next,
	)
	return order, nil
}

// CancelOrder cancels an order on behalf of an operator.
func (s *AdminService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	logger := s.loggerFromContext(ctx)

	if reason == "" {
		reason = "cancelled by operator"
	}
	if err := s.orders.CancelOrder(ctx, orderID, reason); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	logger.Info("order cancelled",
		"order_number", order.OrderNumber,
		"reason", reason,
	)
	return order, nil
}

// OrderStats returns the dashboard aggregates.
func (s *AdminService) OrderStats(ctx context.Context) (*db.Stats, error) {
	return s.orders.Stats(ctx)
}
