package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/matchanah/storefront/internal/config"
	"github.com/matchanah/storefront/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Payment polling can hold a request open for the full window.
		WriteTimeout:   6 * time.Minute,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")

	// The gateway authenticates webhooks with a payload signature, so
	// they bypass the same-origin check.
	r.HandleFunc("/webhooks/payos", h.PayOSWebhook).Methods("POST").Name("webhooks.payos")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.SessionMiddleware)
	api.Use(h.RequireSameOrigin)
	api.HandleFunc("/checkout", h.Checkout).Methods("POST").Name("api.checkout")
	api.HandleFunc("/checkout/session", h.RecoverCheckout).Methods("GET").Name("api.checkout.session")
	api.HandleFunc("/payments/link", h.CreatePaymentLink).Methods("POST").Name("api.payments.link")
	api.HandleFunc("/payments/return", h.PaymentReturn).Methods("GET").Name("api.payments.return")
	api.HandleFunc("/payments/{orderCode:[0-9]+}/poll", h.PollPayment).Methods("POST").Name("api.payments.poll")
	api.HandleFunc("/payments/{orderCode:[0-9]+}/status", h.PaymentStatus).Methods("GET").Name("api.payments.status")
	api.HandleFunc("/orders", h.ListMyOrders).Methods("GET").Name("api.orders")
	api.HandleFunc("/orders/{id}", h.GetMyOrder).Methods("GET").Name("api.orders.get")

	// Login authenticates with a bearer token, not a session, so it is
	// registered ahead of the admin subrouter and its session gate.
	r.Handle("/admin/session", h.RequireSameOrigin(http.HandlerFunc(h.AdminLogin))).Methods("POST").Name("admin.session")
	r.Handle("/admin/session", h.RequireSameOrigin(http.HandlerFunc(h.AdminLogout))).Methods("DELETE").Name("admin.session.logout")

	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(h.SessionMiddleware)
	adminRouter.Use(h.RequireAdmin)
	adminRouter.Use(h.RequireSameOrigin)
	adminRouter.HandleFunc("/orders", h.AdminListOrders).Methods("GET").Name("admin.orders")
	adminRouter.HandleFunc("/orders/stats", h.AdminOrderStats).Methods("GET").Name("admin.orders.stats")
	adminRouter.HandleFunc("/orders/{id}", h.AdminGetOrder).Methods("GET").Name("admin.orders.get")
	adminRouter.HandleFunc("/orders/{id}/status", h.AdminUpdateStatus).Methods("POST").Name("admin.orders.status")
	adminRouter.HandleFunc("/orders/{id}/cancel", h.AdminCancelOrder).Methods("POST").Name("admin.orders.cancel")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	return r
}
