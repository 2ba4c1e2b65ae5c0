package outbox

import "time"

const (
	AggregateNotification = "notification"

	EventNotificationRecorded = "queue.notification.recorded.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is an outbox row waiting to be published.
type Record struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
}

// NotificationRecorded is the payload of EventNotificationRecorded.
type NotificationRecorded struct {
	NotificationID int64  `json:"notification_id"`
	AppointmentID  int64  `json:"appointment_id"`
	Type           string `json:"type"`
	EmailSent      bool   `json:"email_sent"`
	RecordedAt     string `json:"recorded_at"`
}
