package ticket

import (
	"bytes"
	"image/png"
	"testing"
	"time"
)

func TestQRCode_IsPNG(t *testing.T) {
	b, err := QRCode("PHAR-20250115-007", 128)
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 128 {
		t.Fatalf("expected 128px, got %d", img.Bounds().Dx())
	}
}

func TestQRCode_ClampsSize(t *testing.T) {
	b, err := QRCode("PHAR-20250115-007", 5000)
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != DefaultQRSize {
		t.Fatalf("expected default size, got %d", img.Bounds().Dx())
	}
}

func TestQRContent(t *testing.T) {
	if got := QRContent("", "PHAR-20250115-007"); got != "PHAR-20250115-007" {
		t.Fatalf("unexpected %q", got)
	}
	if got := QRContent("https://q.example.com", "PHAR-20250115-007"); got != "https://q.example.com/api/queue/status/PHAR-20250115-007" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	err := WritePDF(&buf, Ticket{
		QueueNumber:       "PHAR-20250115-007",
		Name:              "José Álvarez",
		Purpose:           "Vaccination",
		BookedAt:          time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC),
		Status:            "waiting",
		Position:          3,
		EstimatedWaitTime: 45,
		QRContent:         "PHAR-20250115-007",
	})
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected a pdf header, got %q", buf.Bytes()[:8])
	}
}
