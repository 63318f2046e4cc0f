// Package payos wraps the PayOS merchant HTTP API: hosted payment link
// creation, payment status lookup, and webhook signature verification.
// It is the only package that speaks the gateway's wire protocol.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/matchanah/storefront/internal/crypto"
	"github.com/matchanah/storefront/internal/observability"
)

const (
	defaultBaseURL = "https://api-merchant.payos.vn"

	// The gateway rejects descriptions longer than 25 characters.
	maxDescriptionLen = 25

	requestTimeout = 15 * time.Second
)

var (
	// ErrInvalidRequest marks malformed input detected before any
	// network call. Never retried automatically.
	ErrInvalidRequest = errors.New("invalid payment request")

	// ErrGatewayUnavailable marks a transport-level failure reaching the
	// gateway. Safe to retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// GatewayRejectedError is an explicit decline from the gateway (bad
// signature, invalid amount). Retrying the same payload will not help.
type GatewayRejectedError struct {
	Code string
	Desc string
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("payment gateway rejected request: code=%s desc=%s", e.Code, e.Desc)
}

// Client talks to the PayOS merchant API. Authentication is two static
// headers plus an HMAC signature on mutating calls.
type Client struct {
	baseURL    string
	clientID   string
	apiKey     string
	signer     *crypto.Signer
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds the gateway credentials.
type Config struct {
	BaseURL  string
	ClientID string
	APIKey   string
}

// NewClient builds a gateway client. Credentials are validated here so
// a misconfigured deployment fails at startup.
func NewClient(cfg Config, signer *crypto.Signer, logger *slog.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("payos client id and api key are required")
	}
	if signer == nil {
		return nil, fmt.Errorf("payos signer is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		clientID:   cfg.ClientID,
		apiKey:     cfg.APIKey,
		signer:     signer,
		httpClient: observability.NewHTTPClient(requestTimeout),
		logger:     logger,
	}, nil
}

// GenerateOrderCode returns a fresh numeric order code: unix
// milliseconds with a random three-digit suffix, unique enough within
// the gateway's namespace. Callers own reuse; a code issued for an
// order must never be regenerated.
func GenerateOrderCode() int64 {
	return time.Now().UnixMilli()*1000 + rand.Int64N(1000)
}

// ClampDescription shortens a payment description to the gateway limit.
func ClampDescription(description string) string {
	if len(description) > maxDescriptionLen {
		return description[:maxDescriptionLen]
	}
	return description
}

// CreatePaymentLink requests a hosted payment link for the given order
// snapshot. Validation failures surface as ErrInvalidRequest before any
// network traffic; the call has no side effects beyond the outbound
// request and never touches the order store.
func (c *Client) CreatePaymentLink(ctx context.Context, req CreateLinkRequest) (PaymentLink, error) {
	if req.OrderCode <= 0 {
		return PaymentLink{}, fmt.Errorf("%w: order code is required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return PaymentLink{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if len(req.Items) == 0 {
		return PaymentLink{}, fmt.Errorf("%w: items are required", ErrInvalidRequest)
	}
	if req.ReturnURL == "" || req.CancelURL == "" {
		return PaymentLink{}, fmt.Errorf("%w: return and cancel URLs are required", ErrInvalidRequest)
	}

	description := ClampDescription(req.Description)
	if description == "" {
		description = ClampDescription(fmt.Sprintf("DH%d", req.OrderCode))
	}

	signature := c.signer.SignPaymentRequest(crypto.PaymentRequestFields{
		Amount:      req.Amount,
		CancelURL:   req.CancelURL,
		Description: description,
		OrderCode:   req.OrderCode,
		ReturnURL:   req.ReturnURL,
	})

	body := map[string]any{
		"orderCode":   req.OrderCode,
		"amount":      req.Amount,
		"description": description,
		"items":       req.Items,
		"returnUrl":   req.ReturnURL,
		"cancelUrl":   req.CancelURL,
		"signature":   signature,
	}

	var data linkData
	if err := c.call(ctx, http.MethodPost, "/v2/payment-requests", body, &data); err != nil {
		return PaymentLink{}, err
	}

	link, err := data.toPaymentLink()
	if err != nil {
		return PaymentLink{}, fmt.Errorf("%w: %s", ErrGatewayUnavailable, err)
	}
	link.Description = description
	return link, nil
}

// GetPaymentStatus fetches the current state of a payment request.
// Read-only and safe to call repeatedly; the polling loop depends on
// that.
func (c *Client) GetPaymentStatus(ctx context.Context, orderCode int64) (PaymentDetails, error) {
	if orderCode <= 0 {
		return PaymentDetails{}, fmt.Errorf("%w: order code is required", ErrInvalidRequest)
	}

	var data detailsData
	path := fmt.Sprintf("/v2/payment-requests/%d", orderCode)
	if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return PaymentDetails{}, err
	}

	details, err := data.toPaymentDetails()
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: %s", ErrGatewayUnavailable, err)
	}
	return details, nil
}

// VerifyWebhookSignature recomputes the expected signature over the
// webhook field set and compares it to the received one.
func (c *Client) VerifyWebhookSignature(fields crypto.WebhookFields, receivedSignature string) bool {
	return c.signer.VerifyWebhookPayload(fields, receivedSignature)
}

func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %s", ErrGatewayUnavailable, err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: malformed response: %s", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.ok() {
		c.logger.Warn("gateway declined request",
			"method", method,
			"path", path,
			"http_status", resp.StatusCode,
			"gateway_code", env.Code,
		)
		return &GatewayRejectedError{Code: env.Code, Desc: env.Desc}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: malformed response data: %s", ErrGatewayUnavailable, err)
		}
	}
	return nil
}
