package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the fulfillment lifecycle state of an order. It is
// independent of whether money has been received (see PaymentStatus).
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

// ParseOrderStatus converts a raw string into a known status. Unknown
// values are rejected so typos never become persisted states.
func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return status, nil
	}
	return "", fmt.Errorf("unknown order status: %q", value)
}

// CanTransitionTo reports whether a fulfillment status change is legal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusShipped
	case StatusShipped:
		return next == StatusDelivered
	case StatusDelivered:
		return next == StatusRefunded
	default:
		return false
	}
}

// CanCancel reports whether the order may still be cancelled. Once an
// order has shipped, refund is the only path.
func (s OrderStatus) CanCancel() bool {
	return s == StatusPending || s == StatusConfirmed
}

// PaymentStatus tracks whether money has been confirmed received,
// orthogonal to the fulfillment lifecycle.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// PaymentMethod identifies how the customer pays.
type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "COD"
	MethodVietQR PaymentMethod = "VietQR"
	MethodPayOS  PaymentMethod = "PayOS"
)

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	switch strings.TrimSpace(value) {
	case "COD", "cod":
		return MethodCOD, nil
	case "VietQR", "vietqr":
		return MethodVietQR, nil
	case "PayOS", "payos":
		return MethodPayOS, nil
	}
	return "", fmt.Errorf("unknown payment method: %q", value)
}

// RequiresGateway reports whether this method settles through the
// hosted payment gateway rather than on delivery.
func (m PaymentMethod) RequiresGateway() bool {
	return m == MethodVietQR || m == MethodPayOS
}

// ShippingInfo is the delivery destination. Every field is required
// before an order can be created.
type ShippingInfo struct {
	ReceiverName string `json:"receiver_name"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Ward         string `json:"ward"`
	District     string `json:"district"`
	Province     string `json:"province"`
}

// Validate returns an error naming the first missing field, if any.
func (s ShippingInfo) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"receiver_name", s.ReceiverName},
		{"phone", s.Phone},
		{"address", s.Address},
		{"ward", s.Ward},
		{"district", s.District},
		{"province", s.Province},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("shipping info: %s is required", field.name)
		}
	}
	return nil
}

// OrderItem is a line item on an order. Product fields are snapshot
// copies taken at order creation; later catalog edits never alter
// historical orders.
type OrderItem struct {
	ID           uuid.UUID `json:"id"`
	OrderID      uuid.UUID `json:"order_id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	ProductImage string    `json:"product_image"`
	Quantity     int       `json:"quantity"`
	Price        int64     `json:"price"`
	Total        int64     `json:"total"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatusChange is one entry in an order's fulfillment history.
type StatusChange struct {
	Status    OrderStatus `json:"status"`
	Notes     string      `json:"notes,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Order is one customer order. Monetary amounts are VND, which has no
// minor unit.
type Order struct {
	ID          uuid.UUID   `json:"id"`
	OrderNumber string      `json:"order_number"`
	Status      OrderStatus `json:"status"`

	PaymentStatus        PaymentStatus `json:"payment_status"`
	PaymentMethod        PaymentMethod `json:"payment_method"`
	GatewayOrderCode     int64         `json:"gateway_order_code,omitempty"`
	PaymentTransactionID string        `json:"payment_transaction_id,omitempty"`
	PaidAt               time.Time     `json:"paid_at,omitzero"`

	Items        []OrderItem  `json:"items"`
	Subtotal     int64        `json:"subtotal"`
	ShippingCost int64        `json:"shipping_cost"`
	Tax          int64        `json:"tax"`
	Total        int64        `json:"total"`
	ShippingInfo ShippingInfo `json:"shipping_info"`

	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`

	CancelReason string    `json:"cancel_reason,omitempty"`
	CancelledAt  time.Time `json:"cancelled_at,omitzero"`

	StatusHistory []StatusChange `json:"status_history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces the amount invariants: line totals sum to the
// subtotal and total = subtotal + shipping + tax.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return fmt.Errorf("order must have at least one item")
	}

	var itemSum int64
	for i, item := range o.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i)
		}
		if item.Price < 0 {
			return fmt.Errorf("item %d: price must not be negative", i)
		}
		if item.Total != int64(item.Quantity)*item.Price {
			return fmt.Errorf("item %d: total %d does not equal quantity x price", i, item.Total)
		}
		itemSum += item.Total
	}

	if itemSum != o.Subtotal {
		return fmt.Errorf("subtotal %d does not match sum of item totals %d", o.Subtotal, itemSum)
	}
	if o.ShippingCost < 0 || o.Tax < 0 {
		return fmt.Errorf("shipping cost and tax must not be negative")
	}
	if o.Total != o.Subtotal+o.ShippingCost+o.Tax {
		return fmt.Errorf("total %d does not equal subtotal + shipping + tax", o.Total)
	}

	return o.ShippingInfo.Validate()
}

// IsPaid reports whether payment has been confirmed for this order.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}
