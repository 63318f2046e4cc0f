package handlers

import (
	"net/http"

	"github.com/matchanah/storefront/internal/models"
	"github.com/matchanah/storefront/internal/services"
)

type checkoutItemRequest struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image,omitempty"`
	Quantity     int    `json:"quantity"`
	Price        int64  `json:"price"`
}

type checkoutRequest struct {
	Items         []checkoutItemRequest `json:"items"`
	ShippingInfo  models.ShippingInfo   `json:"shipping_info"`
	PaymentMethod string                `json:"payment_method"`
	ShippingCost  int64                 `json:"shipping_cost"`
	Tax           int64                 `json:"tax"`
}

type checkoutResponse struct {
	Order           *models.Order `json:"order"`
	RequiresPayment bool          `json:"requires_payment"`
}

// Checkout handles POST /api/checkout. The order is persisted in the
// pending state; when the chosen method settles through the gateway the
// client follows up with a payment link request.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid checkout request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	identity, err := h.identityFromRequest(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	sessionID, err := h.sessionID(w, r)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	items := make([]services.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CartItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Quantity:     item.Quantity,
			Price:        item.Price,
		})
	}

	order, err := h.checkoutService.PlaceOrder(ctx, services.PlaceOrderInput{
		SessionID:     sessionID,
		Items:         items,
		ShippingInfo:  req.ShippingInfo,
		PaymentMethod: req.PaymentMethod,
		ShippingCost:  req.ShippingCost,
		Tax:           req.Tax,
		Identity:      identity,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"payment_method", order.PaymentMethod,
		"total", order.Total)

	writeJSON(w, http.StatusCreated, checkoutResponse{
		Order:           order,
		RequiresPayment: order.PaymentMethod.RequiresGateway(),
	})
}

// RecoverCheckout handles GET /api/checkout/session. It returns the
// in-flight order for the caller's session, if one exists, so a page
// reload during payment can pick up where it left off.
func (h *Handlers) RecoverCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := h.sessionManager.SessionID(r)
	if sessionID == "" {
		http.Error(w, "No checkout session", http.StatusNotFound)
		return
	}

	order, err := h.checkoutService.RecoverSession(ctx, sessionID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		Order:           order,
		RequiresPayment: order.PaymentMethod.RequiresGateway() && !order.IsPaid(),
	})
}
