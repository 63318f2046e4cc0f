package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/matchanah/storefront/internal/db"
	"github.com/matchanah/storefront/internal/services"
)

// ListMyOrders handles GET /api/orders. Requires a verified identity
// token; guests have no order history to list.
func (h *Handlers) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.requireIdentity(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	filter := db.Filter{UserID: identity.UserID}
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

	orders, err := h.orderStore.List(ctx, filter)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetMyOrder handles GET /api/orders/{id}. Orders belonging to another
// user read as not found rather than forbidden, so the route does not
// confirm which order ids exist.
func (h *Handlers) GetMyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.requireIdentity(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.orderStore.GetByID(ctx, orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if order.UserID != identity.UserID {
		h.writeError(ctx, w, db.ErrOrderNotFound)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// requireIdentity is identityFromRequest with a missing token promoted
// to an authentication error.
func (h *Handlers) requireIdentity(r *http.Request) (*services.Identity, error) {
	identity, err := h.identityFromRequest(r)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, services.ErrTokenInvalid
	}
	return identity, nil
}
