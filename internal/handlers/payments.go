package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/matchanah/storefront/internal/payos"
	"github.com/matchanah/storefront/internal/services"
)

type paymentLinkRequest struct {
	OrderID string `json:"order_id"`
}

type reconcileResponse struct {
	State       services.ReconcileState `json:"state"`
	OrderNumber string                  `json:"order_number,omitempty"`
	OrderStatus string                  `json:"order_status,omitempty"`
	Paid        bool                    `json:"paid"`
}

func newReconcileResponse(result *services.ReconcileResult) reconcileResponse {
	resp := reconcileResponse{State: result.State}
	if result.Order != nil {
		resp.OrderNumber = result.Order.OrderNumber
		resp.OrderStatus = string(result.Order.Status)
		resp.Paid = result.Order.IsPaid()
	}
	return resp
}

// CreatePaymentLink handles POST /api/payments/link. Repeated calls
// within the pending window return the same link.
func (h *Handlers) CreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req paymentLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid payment link request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	sessionID, err := h.sessionID(w, r)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	pending, err := h.paymentService.EnsurePaymentLink(ctx, sessionID, orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, pending)
}

// PaymentReturn handles GET /api/payments/return, the redirect target
// the gateway sends the customer back to. The outcome in the query
// string is re-confirmed against the gateway before the order moves.
func (h *Handlers) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	params, err := payos.ParseReturnParams(r.URL.Query().Get)
	if err != nil {
		logger.Warn("malformed payment return parameters", "error", err)
		http.Error(w, "Invalid return parameters", http.StatusBadRequest)
		return
	}

	sessionID := h.sessionManager.SessionID(r)
	if sessionID == "" {
		http.Error(w, "No payment session", http.StatusNotFound)
		return
	}

	result, err := h.paymentService.HandleReturn(ctx, sessionID, params)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("payment return reconciled",
		"state", result.State,
		"order_code", params.OrderCode)

	writeJSON(w, http.StatusOK, newReconcileResponse(result))
}

// PollPayment handles POST /api/payments/{orderCode}/poll. It blocks
// until the gateway reports a terminal state or the polling window is
// exhausted, so the client gets a push-like experience over plain HTTP.
func (h *Handlers) PollPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderCode, err := strconv.ParseInt(mux.Vars(r)["orderCode"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid order code", http.StatusBadRequest)
		return
	}

	sessionID := h.sessionManager.SessionID(r)
	if sessionID == "" {
		http.Error(w, "No payment session", http.StatusNotFound)
		return
	}

	result, err := h.paymentService.PollUntilPaid(ctx, sessionID, orderCode, nil)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("payment poll settled", "state", result.State, "order_code", orderCode)

	writeJSON(w, http.StatusOK, newReconcileResponse(result))
}

// PaymentStatus handles GET /api/payments/{orderCode}/status, a
// single-shot gateway status read for clients that manage their own
// retry schedule.
func (h *Handlers) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderCode, err := strconv.ParseInt(mux.Vars(r)["orderCode"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid order code", http.StatusBadRequest)
		return
	}

	details, err := h.payosClient.GetPaymentStatus(ctx, orderCode)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_code": details.OrderCode,
		"status":     details.Status,
		"amount":     details.Amount,
	})
}
