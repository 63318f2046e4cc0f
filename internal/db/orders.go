package db

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matchanah/storefront/internal/models"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrGatewayCodeAssigned     = errors.New("gateway order code already assigned")
)

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	id, order_number, status, payment_status, payment_method,
	gateway_order_code, payment_transaction_id, paid_at,
	subtotal, shipping_cost, tax, total, shipping_info,
	user_id, user_email, cancel_reason, cancelled_at,
	status_history, created_at, updated_at
`

// Create persists the order and its line items in one transaction.
// It fills in the order's ID, order number, and timestamps. An order
// created already paid (a manually reconciled bank transfer, for
// example) gets its paid timestamp stamped here, at creation.
func (s *OrderStore) Create(ctx context.Context, order *Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = generateOrderNumber(time.Now())
	}
	if order.Status == "" {
		order.Status = StatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = PaymentUnpaid
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.PaymentStatus == PaymentPaid && order.PaidAt.IsZero() {
		order.PaidAt = now
	}
	if len(order.StatusHistory) == 0 {
		order.StatusHistory = []models.StatusChange{{
			Status:    order.Status,
			Notes:     "order created",
			Timestamp: now,
		}}
	}

	shippingJSON, err := json.Marshal(order.ShippingInfo)
	if err != nil {
		return fmt.Errorf("failed to encode shipping info: %w", err)
	}
	historyJSON, err := json.Marshal(order.StatusHistory)
	if err != nil {
		return fmt.Errorf("failed to encode status history: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, order_number, status, payment_status, payment_method,
			gateway_order_code, payment_transaction_id, paid_at,
			subtotal, shipping_cost, tax, total, shipping_info,
			user_id, user_email, status_history, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		order.ID, order.OrderNumber, order.Status, order.PaymentStatus, order.PaymentMethod,
		nullableInt64(order.GatewayOrderCode), nullableText(order.PaymentTransactionID), nullableTime(order.PaidAt),
		order.Subtotal, order.ShippingCost, order.Tax, order.Total, shippingJSON,
		nullableText(order.UserID), nullableText(order.UserEmail), historyJSON, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = order.ID
		item.CreatedAt = now

		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (
				id, order_id, position, product_id, product_name, product_image,
				quantity, price, total, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			item.ID, item.OrderID, i, item.ProductID, item.ProductName, item.ProductImage,
			item.Quantity, item.Price, item.Total, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return s.scanOrder(ctx, row)
}

func (s *OrderStore) GetByOrderNumber(ctx context.Context, orderNumber string) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
	return s.scanOrder(ctx, row)
}

// GetByGatewayCode resolves the order that owns a gateway order code.
// The column is unique, so a redirect or webhook carrying the code
// maps to at most one order.
func (s *OrderStore) GetByGatewayCode(ctx context.Context, orderCode int64) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_order_code = $1`, orderCode)
	return s.scanOrder(ctx, row)
}

// SetGatewayOrderCode binds a gateway order code to the order. The
// code is write-once: re-binding the same code is a no-op, a different
// code is ErrGatewayCodeAssigned.
func (s *OrderStore) SetGatewayOrderCode(ctx context.Context, orderID uuid.UUID, orderCode int64) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET gateway_order_code = $1, updated_at = NOW()
		WHERE id = $2 AND gateway_order_code IS NULL
	`, orderCode, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.GatewayOrderCode == orderCode {
		return nil
	}
	return fmt.Errorf("%w: order %s already bound to %d", ErrGatewayCodeAssigned, orderID, order.GatewayOrderCode)
}

// MarkPaid records confirmed receipt of payment. The guarded update
// fires at most once per order: a second call, from the redirect
// handler and the poller racing each other, finds payment_status
// already 'paid' and returns nil without touching the row. A pending
// order is advanced to confirmed in the same statement.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, transactionID string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = $1,
		    payment_transaction_id = $2,
		    paid_at = NOW(),
		    status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
		    updated_at = NOW()
		WHERE id = $3 AND payment_status = $4 AND status <> 'cancelled'
	`, PaymentPaid, nullableText(transactionID), orderID, PaymentUnpaid)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.IsPaid() {
		return nil
	}
	return fmt.Errorf("%w: cannot mark cancelled order paid", ErrInvalidStatusTransition)
}

// UpdateStatus moves the order along the fulfillment lifecycle and
// appends the change to its history. Illegal transitions are rejected
// against the current persisted status, not the caller's belief.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID uuid.UUID, next OrderStatus, notes string) error {
	change, err := json.Marshal([]models.StatusChange{{
		Status:    next,
		Notes:     notes,
		Timestamp: time.Now().UTC(),
	}})
	if err != nil {
		return err
	}

	allowed := previousStatusesFor(next)
	if len(allowed) == 0 {
		return fmt.Errorf("%w: no transition leads to %s", ErrInvalidStatusTransition, next)
	}

	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_history = status_history || $2::jsonb,
		    updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
	`, next, change, orderID, allowed)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, order.Status, next)
}

// CancelOrder cancels an order that has not entered fulfillment.
// Paid-but-not-shipped orders cancel too; the refund is an operator
// concern outside this store.
func (s *OrderStore) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	change, err := json.Marshal([]models.StatusChange{{
		Status:    StatusCancelled,
		Notes:     reason,
		Timestamp: time.Now().UTC(),
	}})
	if err != nil {
		return err
	}

	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    cancel_reason = $2,
		    cancelled_at = NOW(),
		    status_history = status_history || $3::jsonb,
		    updated_at = NOW()
		WHERE id = $4 AND status IN ('pending', 'confirmed')
	`, StatusCancelled, reason, change, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == StatusCancelled {
		return nil
	}
	return fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidStatusTransition, order.Status)
}

// Filter narrows a List call. Zero values mean "any".
type Filter struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	UserID        string
	Limit         int
	Offset        int
}

const defaultListLimit = 50

func (s *OrderStore) List(ctx context.Context, filter Filter) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		query += fmt.Sprintf(" AND payment_status = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := s.scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		if err := s.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Stats is an aggregate snapshot for the order console. Revenue only
// counts money actually received: paid orders that are not cancelled.
type Stats struct {
	TotalOrders    int64
	CountsByStatus map[OrderStatus]int64
	PendingPayment int64
	Revenue        int64
}

func (s *OrderStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{CountsByStatus: make(map[OrderStatus]int64)}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status OrderStatus
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.CountsByStatus[status] = count
		stats.TotalOrders += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE payment_status = 'unpaid' AND status NOT IN ('cancelled', 'refunded')),
		       COALESCE(SUM(total) FILTER (WHERE payment_status = 'paid' AND status <> 'cancelled'), 0)
		FROM orders
	`).Scan(&stats.PendingPayment, &stats.Revenue)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *OrderStore) scanOrder(ctx context.Context, row pgx.Row) (*Order, error) {
	order, err := s.scanOrderRow(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) scanOrderRow(row pgx.Row) (*Order, error) {
	var (
		order         Order
		gatewayCode   pgtype.Int8
		transactionID pgtype.Text
		paidAt        pgtype.Timestamptz
		shippingJSON  []byte
		userID        pgtype.Text
		userEmail     pgtype.Text
		cancelReason  pgtype.Text
		cancelledAt   pgtype.Timestamptz
		historyJSON   []byte
		createdAt     pgtype.Timestamptz
		updatedAt     pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.Status, &order.PaymentStatus, &order.PaymentMethod,
		&gatewayCode, &transactionID, &paidAt,
		&order.Subtotal, &order.ShippingCost, &order.Tax, &order.Total, &shippingJSON,
		&userID, &userEmail, &cancelReason, &cancelledAt,
		&historyJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	order.GatewayOrderCode = gatewayCode.Int64
	order.PaymentTransactionID = transactionID.String
	order.PaidAt = normalizeTimestamp(paidAt)
	order.UserID = userID.String
	order.UserEmail = userEmail.String
	order.CancelReason = cancelReason.String
	order.CancelledAt = normalizeTimestamp(cancelledAt)
	order.CreatedAt = normalizeTimestamp(createdAt)
	order.UpdatedAt = normalizeTimestamp(updatedAt)

	if err := json.Unmarshal(shippingJSON, &order.ShippingInfo); err != nil {
		return nil, fmt.Errorf("failed to decode shipping info: %w", err)
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &order.StatusHistory); err != nil {
			return nil, fmt.Errorf("failed to decode status history: %w", err)
		}
	}

	return &order, nil
}

func (s *OrderStore) loadItems(ctx context.Context, order *Order) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, product_name, product_image,
		       quantity, price, total, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	order.Items = order.Items[:0]
	for rows.Next() {
		var (
			item      OrderItem
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.ProductImage,
			&item.Quantity, &item.Price, &item.Total, &createdAt,
		); err != nil {
			return err
		}
		item.CreatedAt = normalizeTimestamp(createdAt)
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

// previousStatusesFor inverts the transition table: the set of states
// an order may be in for `next` to be a legal move.
func previousStatusesFor(next OrderStatus) []string {
	all := []OrderStatus{
		StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded,
	}
	var allowed []string
	for _, current := range all {
		if current.CanTransitionTo(next) {
			allowed = append(allowed, string(current))
		}
	}
	return allowed
}

// generateOrderNumber builds a human-readable order number: date plus
// a random suffix, e.g. ORD-20260831-4F2A9C.
func generateOrderNumber(now time.Time) string {
	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("ORD-%s-%X", now.UTC().Format("20060102"), suffix)
}

// normalizeTimestamp is the single point where database timestamps
// become Go time values: invalid (NULL) collapses to the zero time and
// everything else is forced to UTC.
func normalizeTimestamp(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time.UTC()
}

func nullableText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}

func nullableInt64(value int64) pgtype.Int8 {
	return pgtype.Int8{Int64: value, Valid: value != 0}
}

func nullableTime(value time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: value, Valid: !value.IsZero()}
}
