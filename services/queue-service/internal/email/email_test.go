package email

import (
	"strings"
	"testing"
	"time"
)

func TestBuildMessage_Headers(t *testing.T) {
	msg := buildMessage(`"Pharmacy" <desk@example.com>`, "ana@example.com", "Your appointment is in 5 minutes!", "line one\nline two")
	if !strings.HasPrefix(msg, "From: \"Pharmacy\" <desk@example.com>\r\nTo: ana@example.com\r\n") {
		t.Fatalf("unexpected headers:\n%s", msg)
	}
	if !strings.Contains(msg, "Subject: Your appointment is in 5 minutes!\r\n") {
		t.Fatalf("expected plain ascii subject, got:\n%s", msg)
	}
	if !strings.Contains(msg, "\r\n\r\nline one\r\nline two\r\n") {
		t.Fatalf("expected CRLF body, got %q", msg)
	}
}

func TestBuildMessage_EncodesNonASCIISubject(t *testing.T) {
	msg := buildMessage("desk@example.com", "zoe@example.com", "Rendez-vous confirmé", "")
	if !strings.Contains(msg, "Subject: =?utf-8?q?") {
		t.Fatalf("expected encoded subject, got %q", msg)
	}
}

func TestReminderTemplates(t *testing.T) {
	d := ReminderData{Name: "Ana", QueueNumber: "PHAR-20250115-002", Position: 2, EstimatedWaitTime: 3}
	ten := TenMinuteReminder(d)
	five := FiveMinuteReminder(d)
	for _, m := range []Message{ten, five} {
		for _, want := range []string{"Dear Ana,", "Queue Number: PHAR-20250115-002", "Current Position: 2", "Estimated Wait Time: 3 minutes"} {
			if !strings.Contains(m.Body, want) {
				t.Fatalf("%q: body missing %q:\n%s", m.Subject, want, m.Body)
			}
		}
	}
	if ten.Subject == five.Subject {
		t.Fatal("expected distinct subjects")
	}
}

func TestConfirmationTemplate(t *testing.T) {
	m := Confirmation(ConfirmationData{
		Name:        "Ben",
		QueueNumber: "PHAR-20250115-007",
		Purpose:     "Vaccination",
		Position:    3,
		BookedAt:    time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC),
		StatusURL:   "https://queue.example.com/status/PHAR-20250115-007",
	})
	if m.Subject != "Your queue number is PHAR-20250115-007" {
		t.Fatalf("unexpected subject %q", m.Subject)
	}
	if !strings.Contains(m.Body, "Booked At: Jan 15, 2025 9:30 AM") || !strings.Contains(m.Body, "https://queue.example.com/status/") {
		t.Fatalf("unexpected body:\n%s", m.Body)
	}
}
