package ticket

import (
	"github.com/skip2/go-qrcode"
)

const DefaultQRSize = 256

// QRCode renders content as a PNG. Sizes outside 64..1024 fall back to DefaultQRSize.
func QRCode(content string, size int) ([]byte, error) {
	if size < 64 || size > 1024 {
		size = DefaultQRSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}

// QRContent is what a scanned ticket opens: the public status URL when one
// is configured, otherwise the bare queue number.
func QRContent(baseURL, queueNumber string) string {
	if baseURL == "" {
		return queueNumber
	}
	return baseURL + "/api/queue/status/" + queueNumber
}
