package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matchanah/storefront/internal/config"
	"github.com/matchanah/storefront/internal/services"
	"github.com/matchanah/storefront/internal/session"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func newAdminTestHandlers(t *testing.T) *Handlers {
	t.Helper()

	authService, err := services.NewAuthService(testJWTSecret)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	manager := session.NewManager(session.NewMemoryStore(), false)
	t.Cleanup(func() { _ = manager.Close() })

	return &Handlers{
		config:         &config.Config{BaseURL: "https://matchanah.store"},
		authService:    authService,
		sessionManager: manager,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func issueIdentityToken(t *testing.T, h *Handlers, identity services.Identity) string {
	t.Helper()

	token, err := h.authService.IssueToken(identity)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func TestAdminLogin_ExchangesAdminTokenForSession(t *testing.T) {
	t.Parallel()

	h := newAdminTestHandlers(t)
	token := issueIdentityToken(t, h, services.Identity{
		UserID:  "admin-1",
		Email:   "ops@matchanah.store",
		IsAdmin: true,
	})

	req := httptest.NewRequest("POST", "https://matchanah.store/admin/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.AdminLogin(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rr.Code, rr.Body.String())
	}
	cookies := rr.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}

	// The minted session passes the admin gate.
	var reached bool
	gate := h.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))
	gateReq := httptest.NewRequest("GET", "https://matchanah.store/admin/orders", nil)
	for _, cookie := range cookies {
		gateReq.AddCookie(cookie)
	}
	gateRR := httptest.NewRecorder()
	gate.ServeHTTP(gateRR, gateReq)

	if gateRR.Code != http.StatusOK || !reached {
		t.Fatalf("admin gate status = %d, reached = %v, want 200 with handler reached", gateRR.Code, reached)
	}
}

func TestAdminLogin_RefusesNonAdminIdentity(t *testing.T) {
	t.Parallel()

	h := newAdminTestHandlers(t)
	token := issueIdentityToken(t, h, services.Identity{
		UserID: "customer-1",
		Email:  "customer@example.com",
	})

	req := httptest.NewRequest("POST", "https://matchanah.store/admin/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.AdminLogin(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Error("session cookie set for non-admin identity")
	}
}

func TestAdminLogin_RejectsMissingOrInvalidToken(t *testing.T) {
	t.Parallel()

	h := newAdminTestHandlers(t)

	for name, header := range map[string]string{
		"missing": "",
		"garbage": "Bearer not-a-token",
	} {
		req := httptest.NewRequest("POST", "https://matchanah.store/admin/session", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.AdminLogin(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s token: status = %d, want 401", name, rr.Code)
		}
	}
}

func TestRequireAdmin_BlocksAnonymousSession(t *testing.T) {
	t.Parallel()

	h := newAdminTestHandlers(t)

	sessReq := httptest.NewRequest("GET", "https://matchanah.store/api/checkout", nil)
	sessRR := httptest.NewRecorder()
	if _, err := h.sessionID(sessRR, sessReq); err != nil {
		t.Fatalf("sessionID: %v", err)
	}

	gate := h.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("admin gate let an anonymous session through")
	}))
	req := httptest.NewRequest("GET", "https://matchanah.store/admin/orders", nil)
	for _, cookie := range sessRR.Result().Cookies() {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	gate.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}
