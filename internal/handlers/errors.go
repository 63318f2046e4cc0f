package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/matchanah/storefront/internal/db"
	"github.com/matchanah/storefront/internal/payos"
	"github.com/matchanah/storefront/internal/services"
)

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeError maps domain errors onto HTTP statuses and fixed user
// messages. Integrity failures never claim success and never leak
// internals; transient ones are flagged retryable.
func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := h.loggerFromContext(ctx)

	var rejected *payos.GatewayRejectedError

	switch {
	case errors.Is(err, db.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
	case errors.Is(err, services.ErrPendingPaymentMissing):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no payment in progress for this session"})
	case errors.Is(err, services.ErrCallbackMismatch):
		logger.Error("payment callback mismatch", "error", err)
		writeJSON(w, http.StatusConflict, errorResponse{Error: "payment details could not be verified, please contact support"})
	case errors.Is(err, services.ErrPollTimeout):
		writeJSON(w, http.StatusAccepted, errorResponse{Error: "payment still pending, try again shortly", Retryable: true})
	case errors.Is(err, db.ErrInvalidStatusTransition),
		errors.Is(err, db.ErrGatewayCodeAssigned),
		errors.Is(err, services.ErrPaymentNotRequired):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, payos.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrTokenInvalid), errors.Is(err, services.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or expired credentials"})
	case errors.As(err, &rejected):
		logger.Error("payment gateway rejected request", "code", rejected.Code, "desc", rejected.Desc)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "payment gateway rejected the request, please contact support"})
	case errors.Is(err, payos.ErrGatewayUnavailable):
		logger.Error("payment gateway unavailable", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "payment gateway unavailable, try again", Retryable: true})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
