package handlers

import (
	"net/http"
	"time"

	"github.com/matchanah/storefront/internal/cache"
	"github.com/matchanah/storefront/internal/payos"
)

// payosWebhookIdempotencyTTL is how long webhook event IDs are kept for deduplication
const payosWebhookIdempotencyTTL = 24 * time.Hour

func (h *Handlers) PayOSWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	event, err := payos.ParseWebhookEvent(r.Body)
	if err != nil {
		logger.Error("failed to read gateway webhook payload", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	if !h.payosClient.VerifyWebhookSignature(event.SignatureFields(), event.Signature) {
		logger.Error("gateway webhook signature mismatch", "order_code", event.Data.OrderCode)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	cacheKey := cache.WebhookKey("payos", event.EventID())
	if _, err := h.cacheProvider.Get(ctx, cacheKey); err == nil {
		logger.Info("webhook already processed", "event_id", event.EventID())
		w.WriteHeader(http.StatusOK)
		return
	}

	result, processErr := h.paymentService.ConfirmWebhook(ctx, event.Data.OrderCode, event.Success)
	if processErr == nil {
		if err := h.cacheProvider.Set(ctx, cacheKey, "processed", payosWebhookIdempotencyTTL); err != nil {
			logger.Error("failed to mark webhook as processed in cache", "error", err)
		}
	}
	if processErr != nil {
		logger.Error("failed to process gateway webhook",
			"error", processErr,
			"order_code", event.Data.OrderCode)
		h.writeError(ctx, w, processErr)
		return
	}

	logger.Info("gateway webhook processed",
		"event_id", event.EventID(),
		"order_code", event.Data.OrderCode,
		"state", result.State)

	w.WriteHeader(http.StatusOK)
}
