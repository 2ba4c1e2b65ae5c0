package model

import "time"

const (
	NotificationConfirmation       = "Confirmation"
	NotificationTenMinuteReminder  = "10MinuteReminder"
	NotificationFiveMinuteReminder = "5MinuteReminder"
)

type Notification struct {
	ID               int64
	AppointmentID    int64
	Type             string
	EmailContent     string
	EmailSent        bool
	NotificationTime time.Time
}
