package payos

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LinkStatus is the gateway's view of a payment request.
type LinkStatus string

const (
	LinkStatusPending    LinkStatus = "PENDING"
	LinkStatusProcessing LinkStatus = "PROCESSING"
	LinkStatusPaid       LinkStatus = "PAID"
	LinkStatusCancelled  LinkStatus = "CANCELLED"
	LinkStatusExpired    LinkStatus = "EXPIRED"
)

// Terminal reports whether the gateway will never move this request to
// another state on its own.
func (s LinkStatus) Terminal() bool {
	return s == LinkStatusPaid || s == LinkStatusCancelled || s == LinkStatusExpired
}

// CreateLinkRequest is the input for a hosted payment link. Amount is
// VND; Description is clamped to the gateway's 25-character limit
// before sending.
type CreateLinkRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	Items       []Item
	ReturnURL   string
	CancelURL   string
}

// Item mirrors the gateway's line item shape: a name, a quantity, and a
// unit price.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// PaymentLink is the validated result of a create call.
type PaymentLink struct {
	OrderCode     int64      `json:"order_code"`
	Amount        int64      `json:"amount"`
	Description   string     `json:"description"`
	PaymentLinkID string     `json:"payment_link_id"`
	CheckoutURL   string     `json:"checkout_url"`
	QRCode        string     `json:"qr_code"`
	AccountName   string     `json:"account_name"`
	AccountNumber string     `json:"account_number"`
	BIN           string     `json:"bin"`
	Currency      string     `json:"currency"`
	Status        LinkStatus `json:"status"`
}

// Transaction is one settlement record reported by the gateway.
type Transaction struct {
	Reference   string `json:"reference"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	DateTime    string `json:"transactionDateTime"`
}

// PaymentDetails is the validated result of a status fetch.
type PaymentDetails struct {
	OrderCode     int64         `json:"order_code"`
	PaymentLinkID string        `json:"payment_link_id"`
	Amount        int64         `json:"amount"`
	AmountPaid    int64         `json:"amount_paid"`
	Status        LinkStatus    `json:"status"`
	Transactions  []Transaction `json:"transactions"`
}

// TransactionID returns the most useful transaction identifier the
// gateway exposed: the first settlement reference, falling back to the
// payment link id.
func (d PaymentDetails) TransactionID() string {
	if len(d.Transactions) > 0 && d.Transactions[0].Reference != "" {
		return d.Transactions[0].Reference
	}
	return d.PaymentLinkID
}

// envelope is the gateway's generic response wrapper. The data member
// is loosely typed JSON; parsing into closed structs happens here so
// the rest of the engine never does ad hoc field access.
type envelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

const gatewayOKCode = "00"

func (e envelope) ok() bool {
	return e.Code == gatewayOKCode
}

type linkData struct {
	OrderCode     int64      `json:"orderCode"`
	Amount        int64      `json:"amount"`
	Description   string     `json:"description"`
	PaymentLinkID string     `json:"paymentLinkId"`
	CheckoutURL   string     `json:"checkoutUrl"`
	QRCode        string     `json:"qrCode"`
	AccountName   string     `json:"accountName"`
	AccountNumber string     `json:"accountNumber"`
	BIN           string     `json:"bin"`
	Currency      string     `json:"currency"`
	Status        LinkStatus `json:"status"`
}

func (d linkData) toPaymentLink() (PaymentLink, error) {
	if d.OrderCode == 0 {
		return PaymentLink{}, fmt.Errorf("gateway response missing orderCode")
	}
	if d.CheckoutURL == "" {
		return PaymentLink{}, fmt.Errorf("gateway response missing checkoutUrl")
	}
	return PaymentLink{
		OrderCode:     d.OrderCode,
		Amount:        d.Amount,
		Description:   d.Description,
		PaymentLinkID: d.PaymentLinkID,
		CheckoutURL:   d.CheckoutURL,
		QRCode:        d.QRCode,
		AccountName:   d.AccountName,
		AccountNumber: d.AccountNumber,
		BIN:           d.BIN,
		Currency:      d.Currency,
		Status:        d.Status,
	}, nil
}

type detailsData struct {
	OrderCode     int64         `json:"orderCode"`
	PaymentLinkID string        `json:"id"`
	Amount        int64         `json:"amount"`
	AmountPaid    int64         `json:"amountPaid"`
	Status        LinkStatus    `json:"status"`
	Transactions  []Transaction `json:"transactions"`
}

func (d detailsData) toPaymentDetails() (PaymentDetails, error) {
	if d.Status == "" {
		return PaymentDetails{}, fmt.Errorf("gateway response missing status")
	}
	return PaymentDetails{
		OrderCode:     d.OrderCode,
		PaymentLinkID: d.PaymentLinkID,
		Amount:        d.Amount,
		AmountPaid:    d.AmountPaid,
		Status:        d.Status,
		Transactions:  d.Transactions,
	}, nil
}

// ReturnParams is the query-parameter contract of the gateway's
// redirect back to the storefront. These values are client-supplied and
// must never be trusted without cross-validation.
type ReturnParams struct {
	Code      string
	ID        string
	Cancel    bool
	Status    LinkStatus
	OrderCode int64
	Amount    int64
	Success   bool
}

// ParseReturnParams decodes the redirect query parameters. Absent
// numeric fields parse to zero; malformed ones are an error so a
// tampered URL fails loudly instead of slipping through as zero.
func ParseReturnParams(get func(string) string) (ReturnParams, error) {
	params := ReturnParams{
		Code:    get("code"),
		ID:      get("id"),
		Cancel:  get("cancel") == "true",
		Status:  LinkStatus(strings.ToUpper(get("status"))),
		Success: get("success") == "true",
	}

	if raw := get("orderCode"); raw != "" {
		orderCode, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ReturnParams{}, fmt.Errorf("invalid orderCode %q: %w", raw, err)
		}
		params.OrderCode = orderCode
	}
	if raw := get("amount"); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ReturnParams{}, fmt.Errorf("invalid amount %q: %w", raw, err)
		}
		params.Amount = amount
	}

	return params, nil
}
