package certificates

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// qrImageSize is the rendered QR PNG edge length in pixels.
const qrImageSize = 256

// RenderQR renders the certificate's verification payload as a PNG QR code.
func RenderQR(qrPayload string) ([]byte, error) {
	png, err := qrcode.Encode(qrPayload, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}
