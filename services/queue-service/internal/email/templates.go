package email

import (
	"fmt"
	"time"
)

const signature = "Best regards,\nPharmacy Queue System"

// Message is a rendered subject and plain text body.
type Message struct {
	Subject string
	Body    string
}

type ReminderData struct {
	Name              string
	QueueNumber       string
	Position          int
	EstimatedWaitTime int
}

func TenMinuteReminder(d ReminderData) Message {
	return Message{
		Subject: "Your appointment is in 10 minutes",
		Body: fmt.Sprintf(`Dear %s,

Your appointment is coming up in about 10 minutes.
Queue Number: %s
Current Position: %d
Estimated Wait Time: %d minutes

Please make sure you're ready when called.

%s`, d.Name, d.QueueNumber, d.Position, d.EstimatedWaitTime, signature),
	}
}

func FiveMinuteReminder(d ReminderData) Message {
	return Message{
		Subject: "Your appointment is in 5 minutes!",
		Body: fmt.Sprintf(`Dear %s,

Your appointment is coming up in about 5 minutes!
Queue Number: %s
Current Position: %d
Estimated Wait Time: %d minutes

Please be ready to be called soon.

%s`, d.Name, d.QueueNumber, d.Position, d.EstimatedWaitTime, signature),
	}
}

type ConfirmationData struct {
	Name              string
	QueueNumber       string
	Purpose           string
	Position          int
	EstimatedWaitTime int
	BookedAt          time.Time
	StatusURL         string
}

func Confirmation(d ConfirmationData) Message {
	body := fmt.Sprintf(`Dear %s,

Your pharmacy visit is booked.
Queue Number: %s
Purpose: %s
Booked At: %s
Current Position: %d
Estimated Wait Time: %d minutes
`, d.Name, d.QueueNumber, d.Purpose, d.BookedAt.Format("Jan 2, 2006 3:04 PM"), d.Position, d.EstimatedWaitTime)
	if d.StatusURL != "" {
		body += "\nTrack your place in line: " + d.StatusURL + "\n"
	}
	body += "\nWe will email you again when your turn is close.\n\n" + signature
	return Message{Subject: "Your queue number is " + d.QueueNumber, Body: body}
}
