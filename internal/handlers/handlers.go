package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matchanah/storefront/internal/cache"
	"github.com/matchanah/storefront/internal/config"
	"github.com/matchanah/storefront/internal/db"
	"github.com/matchanah/storefront/internal/logging"
	"github.com/matchanah/storefront/internal/payos"
	"github.com/matchanah/storefront/internal/services"
	"github.com/matchanah/storefront/internal/session"
)

const (
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	maxJSONBodyBytes    = 256 << 10
)

// Handlers provides the storefront's HTTP request handlers.
type Handlers struct {
	config          *config.Config
	db              *pgxpool.Pool
	orderStore      *db.OrderStore
	cacheProvider   cache.Provider
	payosClient     *payos.Client
	authService     *services.AuthService
	checkoutService *services.CheckoutService
	paymentService  *services.PaymentService
	adminService    *services.AdminService
	sessionManager  *session.Manager
	logger          *slog.Logger
}

type Dependencies struct {
	Config          *config.Config
	DB              *pgxpool.Pool
	OrderStore      *db.OrderStore
	CacheProvider   cache.Provider
	PayOSClient     *payos.Client
	AuthService     *services.AuthService
	CheckoutService *services.CheckoutService
	PaymentService  *services.PaymentService
	AdminService    *services.AdminService
	SessionManager  *session.Manager
	Logger          *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.OrderStore == nil {
		return nil, fmt.Errorf("handlers dependencies: orderStore is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.PayOSClient == nil {
		return nil, fmt.Errorf("handlers dependencies: payosClient is required")
	}
	if deps.AuthService == nil {
		return nil, fmt.Errorf("handlers dependencies: authService is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.PaymentService == nil {
		return nil, fmt.Errorf("handlers dependencies: paymentService is required")
	}
	if deps.AdminService == nil {
		return nil, fmt.Errorf("handlers dependencies: adminService is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}

	return &Handlers{
		config:          deps.Config,
		db:              deps.DB,
		orderStore:      deps.OrderStore,
		cacheProvider:   deps.CacheProvider,
		payosClient:     deps.PayOSClient,
		authService:     deps.AuthService,
		checkoutService: deps.CheckoutService,
		paymentService:  deps.PaymentService,
		adminService:    deps.AdminService,
		sessionManager:  deps.SessionManager,
		logger:          logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SessionMiddleware adds session data to the request context
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return h.sessionManager.Middleware(next)
}

func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return h.sessionManager.RequireAdmin()(next)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

// identityFromRequest verifies the bearer token, if any. A missing
// header is not an error; guest requests simply carry no identity.
func (h *Handlers) identityFromRequest(r *http.Request) (*services.Identity, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, nil
	}

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return nil, services.ErrTokenInvalid
	}
	return h.authService.VerifyToken(strings.TrimSpace(token))
}

// sessionID returns the caller's session identifier, creating an
// anonymous session when none exists so checkout and payment state
// have somewhere to live.
func (h *Handlers) sessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	if id := h.sessionManager.SessionID(r); id != "" {
		return id, nil
	}
	return h.sessionManager.CreateSession(r.Context(), w, &session.Data{})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func SecureCookiesFromConfig(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}

	return cfg.Port == "443" || cfg.Port == "8443"
}
