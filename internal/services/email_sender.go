package services

import (
	"context"

	"github.com/matchanah/storefront/internal/email"
	"github.com/matchanah/storefront/internal/models"
)

type OrderEmailSender interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
	SendPaymentReceived(ctx context.Context, order *models.Order) error
	SendOrderShipped(ctx context.Context, order *models.Order) error
}

type ProviderOrderEmailSender struct {
	provider email.Provider
}

func NewProviderOrderEmailSender(provider email.Provider) *ProviderOrderEmailSender {
	if provider == nil {
		provider = email.NoopProvider{}
	}
	return &ProviderOrderEmailSender{provider: provider}
}

func (s *ProviderOrderEmailSender) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	return email.SendOrderConfirmation(ctx, s.provider, email.BuildOrderInfo(order))
}

func (s *ProviderOrderEmailSender) SendPaymentReceived(ctx context.Context, order *models.Order) error {
	return email.SendPaymentReceived(ctx, s.provider, email.BuildOrderInfo(order))
}

func (s *ProviderOrderEmailSender) SendOrderShipped(ctx context.Context, order *models.Order) error {
	return email.SendOrderShipped(ctx, s.provider, email.BuildOrderInfo(order))
}

type noopOrderEmailSender struct{}

func (noopOrderEmailSender) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendPaymentReceived(ctx context.Context, order *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendOrderShipped(ctx context.Context, order *models.Order) error {
	return nil
}
