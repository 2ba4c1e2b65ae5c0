package ticket

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/phpdave11/gofpdf"
)

type Ticket struct {
	QueueNumber       string
	Name              string
	Purpose           string
	BookedAt          time.Time
	Status            string
	Position          int
	EstimatedWaitTime int
	QRContent         string
}

// WritePDF renders a one page A6 ticket with the queue number, the booking
// details and a QR code.
func WritePDF(w io.Writer, t Ticket) error {
	qr, err := QRCode(t.QRContent, DefaultQRSize)
	if err != nil {
		return fmt.Errorf("render qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A6", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle("Queue ticket "+t.QueueNumber, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Pharmacy Queue Ticket", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, t.QueueNumber, "TB", 1, "C", false, 0, "")
	pdf.Ln(3)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf(
		"Name: %s\nPurpose: %s\nBooked: %s\nStatus: %s",
		t.Name,
		t.Purpose,
		t.BookedAt.Format("02 Jan 2006 15:04"),
		t.Status,
	)), "", "L", false)
	if t.Status == "waiting" {
		pdf.MultiCell(0, 5, fmt.Sprintf("Position: %d\nEstimated wait: %d min", t.Position, t.EstimatedWaitTime), "", "L", false)
	}

	opts := gofpdf.ImageOptions{ImageType: "png"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 27, pdf.GetY()+4, 50, 50, false, opts, 0, "")

	pdf.SetY(-18)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 5, "Scan to follow your place in line.", "T", 0, "C", false, 0, "")

	return pdf.Output(w)
}
