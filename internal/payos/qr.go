package payos

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// RenderQRImage turns the gateway's raw QR payload (an EMVCo transfer
// string) into a base64-encoded PNG for inline display. Callers fall
// back to the checkout URL when rendering fails.
func RenderQRImage(payload string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("qr payload is required")
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to render qr image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
