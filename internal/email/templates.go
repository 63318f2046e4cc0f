// Package email provides email templates.
package email

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"text/template"

	"github.com/matchanah/storefront/internal/models"
)

// OrderInfo contains the information needed for order email templates.
type OrderInfo struct {
	OrderNumber     string
	CustomerName    string
	CustomerEmail   string
	PaymentMethod   string
	OrderDate       string
	Items           []OrderLine
	Subtotal        string
	Shipping        string
	Tax             string
	Total           string
	ShippingAddress string
}

// OrderLine represents a single item in an order email.
type OrderLine struct {
	Name       string
	Quantity   int
	UnitPrice  string
	TotalPrice string
}

type emailTemplate struct {
	subject string
	text    string
}

var orderTemplates = map[string]emailTemplate{
	"order_confirmation": {
		subject: "Order Confirmed - {{.OrderNumber}} - Matchanah",
		text:    orderConfirmationText,
	},
	"payment_received": {
		subject: "Payment Received - {{.OrderNumber}} - Matchanah",
		text:    paymentReceivedText,
	},
	"order_shipped": {
		subject: "Your Order Has Shipped - {{.OrderNumber}} - Matchanah",
		text:    orderShippedText,
	},
}

const orderConfirmationText = `Hi {{.CustomerName}},

Thank you for your order!

Order: {{.OrderNumber}}
Date: {{.OrderDate}}
Payment: {{.PaymentMethod}}

Items:
{{range .Items}}  {{.Name}} x{{.Quantity}} - {{.TotalPrice}}
{{end}}
Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}
Tax: {{.Tax}}
Total: {{.Total}}

Ship to:
{{.ShippingAddress}}

We will let you know as soon as your order is on its way.

Matchanah
`

const paymentReceivedText = `Hi {{.CustomerName}},

We have received your payment for order {{.OrderNumber}}.

Total paid: {{.Total}}

Your matcha is being prepared for shipment.

Matchanah
`

const orderShippedText = `Hi {{.CustomerName}},

Your order {{.OrderNumber}} is on its way!

Ship to:
{{.ShippingAddress}}

Matchanah
`

// RenderOrderEmail renders the named template against the order info.
func RenderOrderEmail(name string, info OrderInfo) (subject, text string, err error) {
	tpl, ok := orderTemplates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template: %s", name)
	}

	subject, err = renderTemplate(name+"_subject", tpl.subject, info)
	if err != nil {
		return "", "", err
	}
	text, err = renderTemplate(name+"_text", tpl.text, info)
	if err != nil {
		return "", "", err
	}
	return subject, text, nil
}

// BuildOrderInfo converts a persisted order into template fields.
func BuildOrderInfo(order *models.Order) OrderInfo {
	info := OrderInfo{
		OrderNumber:     order.OrderNumber,
		CustomerName:    order.ShippingInfo.ReceiverName,
		CustomerEmail:   order.UserEmail,
		PaymentMethod:   string(order.PaymentMethod),
		OrderDate:       order.CreatedAt.Format("2006-01-02"),
		Subtotal:        FormatVND(order.Subtotal),
		Shipping:        FormatVND(order.ShippingCost),
		Tax:             FormatVND(order.Tax),
		Total:           FormatVND(order.Total),
		ShippingAddress: formatAddress(order.ShippingInfo),
	}
	for _, item := range order.Items {
		info.Items = append(info.Items, OrderLine{
			Name:       item.ProductName,
			Quantity:   item.Quantity,
			UnitPrice:  FormatVND(item.Price),
			TotalPrice: FormatVND(item.Total),
		})
	}
	return info
}

// FormatVND renders a VND amount with dot thousand separators,
// e.g. 1250000 -> "1.250.000₫". VND has no minor unit.
func FormatVND(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	var buf bytes.Buffer
	if negative {
		buf.WriteByte('-')
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			buf.WriteByte('.')
		}
		buf.WriteRune(d)
	}
	buf.WriteString("₫")
	return buf.String()
}

func formatAddress(info models.ShippingInfo) string {
	return fmt.Sprintf("%s\n%s\n%s, %s, %s, %s",
		info.ReceiverName, info.Phone,
		info.Address, info.Ward, info.District, info.Province)
}

func renderTemplate(name, body string, info OrderInfo) (string, error) {
	tpl, err := template.New(name).Parse(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, info); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SendOrderConfirmation sends the order confirmation email.
func SendOrderConfirmation(ctx context.Context, provider Provider, info OrderInfo) error {
	return send(ctx, provider, "order_confirmation", info)
}

// SendPaymentReceived sends the payment received email.
func SendPaymentReceived(ctx context.Context, provider Provider, info OrderInfo) error {
	return send(ctx, provider, "payment_received", info)
}

// SendOrderShipped sends the shipment notification email.
func SendOrderShipped(ctx context.Context, provider Provider, info OrderInfo) error {
	return send(ctx, provider, "order_shipped", info)
}

func send(ctx context.Context, provider Provider, name string, info OrderInfo) error {
	if provider == nil {
		return fmt.Errorf("email provider is required")
	}
	if info.CustomerEmail == "" {
		return fmt.Errorf("customer email is required")
	}

	subject, text, err := RenderOrderEmail(name, info)
	if err != nil {
		return err
	}

	return provider.SendEmail(ctx, &Email{
		To:      info.CustomerEmail,
		Subject: subject,
		Text:    text,
	})
}
