package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/matchanah/storefront/internal/db"
	"github.com/matchanah/storefront/internal/models"
	"github.com/matchanah/storefront/internal/session"
)

// AdminLogin handles POST /admin/session. It exchanges a verified
// identity token carrying the admin claim for the session cookie the
// order console runs on. Non-admin identities are refused.
func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	identity, err := h.requireIdentity(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if !identity.IsAdmin {
		logger.Warn("admin session refused", "user_id", identity.UserID)
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin privileges required"})
		return
	}

	if _, err := h.sessionManager.CreateSession(ctx, w, &session.Data{
		UserID:  identity.UserID,
		Email:   identity.Email,
		Name:    identity.Name,
		IsAdmin: true,
	}); err != nil {
		logger.Error("failed to create admin session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	logger.Info("admin session created", "user_id", identity.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// AdminLogout handles DELETE /admin/session.
func (h *Handlers) AdminLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.sessionManager.DestroySession(ctx, w, r); err != nil {
		h.loggerFromContext(ctx).Error("failed to destroy session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AdminListOrders handles GET /admin/orders with optional status,
// payment_status, limit, and offset query filters.
func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var filter db.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseOrderStatus(raw)
		if err != nil {
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("payment_status"); raw != "" {
		switch models.PaymentStatus(raw) {
		case models.PaymentUnpaid, models.PaymentPaid:
			filter.PaymentStatus = models.PaymentStatus(raw)
		default:
			http.Error(w, "Invalid payment status filter", http.StatusBadRequest)
			return
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	orders, err := h.adminService.ListOrders(ctx, filter)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// AdminGetOrder handles GET /admin/orders/{id}.
func (h *Handlers) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.adminService.GetOrder(ctx, orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

type adminStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// AdminUpdateStatus handles POST /admin/orders/{id}/status. Cancelling
// goes through the dedicated cancel route, not this one.
func (h *Handlers) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	var req adminStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.adminService.UpdateFulfillmentStatus(ctx, orderID, req.Status, req.Notes)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("order status updated",
		"order_number", order.OrderNumber,
		"status", order.Status)

	writeJSON(w, http.StatusOK, order)
}

type adminCancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AdminCancelOrder handles POST /admin/orders/{id}/cancel.
func (h *Handlers) AdminCancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	var req adminCancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.adminService.CancelOrder(ctx, orderID, req.Reason)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("order cancelled",
		"order_number", order.OrderNumber,
		"reason", order.CancelReason)

	writeJSON(w, http.StatusOK, order)
}

// AdminOrderStats handles GET /admin/orders/stats.
func (h *Handlers) AdminOrderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.adminService.OrderStats(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
