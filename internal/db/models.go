package db

import "github.com/matchanah/storefront/internal/models"

type Order = models.Order
type OrderItem = models.OrderItem
type OrderStatus = models.OrderStatus
type PaymentStatus = models.PaymentStatus

const (
	StatusPending    = models.StatusPending
	StatusConfirmed  = models.StatusConfirmed
	StatusProcessing = models.StatusProcessing
	StatusShipped    = models.StatusShipped
	StatusDelivered  = models.StatusDelivered
	StatusCancelled  = models.StatusCancelled
	StatusRefunded   = models.StatusRefunded

	PaymentUnpaid = models.PaymentUnpaid
	PaymentPaid   = models.PaymentPaid
)
