// Package crypto computes and verifies HMAC integrity signatures for
// payment gateway payloads.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrMissingKey = errors.New("checksum key is required")

// Signer produces HMAC-SHA256 signatures keyed by the gateway checksum
// key. Signatures are deterministic: identical fields and key always
// yield the identical lowercase-hex digest.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer from the shared checksum key. An empty key
// is a configuration error and is rejected at construction, not per call.
func NewSigner(checksumKey string) (*Signer, error) {
	if checksumKey == "" {
		return nil, ErrMissingKey
	}
	return &Signer{key: []byte(checksumKey)}, nil
}

// PaymentRequestFields is the signed field set of a payment-link
// creation request.
type PaymentRequestFields struct {
	Amount      int64
	CancelURL   string
	Description string
	OrderCode   int64
	ReturnURL   string
}

// SignPaymentRequest signs the canonical concatenation the gateway
// expects: key=value pairs joined with "&", fields in fixed
// alphabetical order (amount, cancelUrl, description, orderCode,
// returnUrl).
func (s *Signer) SignPaymentRequest(fields PaymentRequestFields) string {
	canonical := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		fields.Amount, fields.CancelURL, fields.Description, fields.OrderCode, fields.ReturnURL)
	return s.sign(canonical)
}

// WebhookFields is the signed field set of a gateway webhook payload.
type WebhookFields struct {
	Amount    int64
	Code      string
	Desc      string
	OrderCode int64
	Success   bool
}

// SignWebhookPayload signs the webhook field set in its fixed canonical
// order (amount, code, desc, orderCode, success).
func (s *Signer) SignWebhookPayload(fields WebhookFields) string {
	canonical := fmt.Sprintf("amount=%d&code=%s&desc=%s&orderCode=%d&success=%t",
		fields.Amount, fields.Code, fields.Desc, fields.OrderCode, fields.Success)
	return s.sign(canonical)
}

// VerifyWebhookPayload recomputes the expected webhook signature and
// compares it in constant time.
func (s *Signer) VerifyWebhookPayload(fields WebhookFields, receivedSignature string) bool {
	expected := s.SignWebhookPayload(fields)
	return hmac.Equal([]byte(expected), []byte(receivedSignature))
}

func (s *Signer) sign(canonical string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}
