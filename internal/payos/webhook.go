package payos

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/matchanah/storefront/internal/crypto"
)

// WebhookEvent is the gateway's push notification for a payment
// outcome. Signature covers the data fields, not the envelope.
type WebhookEvent struct {
	Code      string      `json:"code"`
	Desc      string      `json:"desc"`
	Success   bool        `json:"success"`
	Data      WebhookData `json:"data"`
	Signature string      `json:"signature"`
}

// WebhookData is the signed portion of a webhook event.
type WebhookData struct {
	OrderCode     int64  `json:"orderCode"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	Reference     string `json:"reference"`
	TransactionAt string `json:"transactionDateTime"`
	PaymentLinkID string `json:"paymentLinkId"`
	Code          string `json:"code"`
	Desc          string `json:"desc"`
}

// EventID is a stable identifier for deduplication. The gateway does
// not send one, so it is derived from the settlement reference and the
// order code.
func (e WebhookEvent) EventID() string {
	if e.Data.Reference != "" {
		return fmt.Sprintf("%d:%s", e.Data.OrderCode, e.Data.Reference)
	}
	return fmt.Sprintf("%d:%s", e.Data.OrderCode, strings.ToLower(e.Data.Desc))
}

// SignatureFields maps the event onto the canonical webhook field set.
func (e WebhookEvent) SignatureFields() crypto.WebhookFields {
	return crypto.WebhookFields{
		Amount:    e.Data.Amount,
		Code:      e.Code,
		Desc:      e.Desc,
		OrderCode: e.Data.OrderCode,
		Success:   e.Success,
	}
}

// ParseWebhookEvent decodes a webhook request body. Signature
// verification is a separate step; a parsed event is not yet trusted.
func ParseWebhookEvent(body io.Reader) (WebhookEvent, error) {
	var event WebhookEvent
	if err := json.NewDecoder(body).Decode(&event); err != nil {
		return WebhookEvent{}, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if event.Data.OrderCode == 0 {
		return WebhookEvent{}, fmt.Errorf("invalid webhook payload: missing orderCode")
	}
	if event.Signature == "" {
		return WebhookEvent{}, fmt.Errorf("invalid webhook payload: missing signature")
	}
	return event, nil
}
