package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the appointment lifecycle state. The numeric values are the codes
// persisted by the store; 3 is unused.
type Status int

const (
	StatusWaiting    Status = 0
	StatusInProgress Status = 1
	StatusCompleted  Status = 2
	StatusCancelled  Status = 4
)

var statusNames = map[Status]string{
	StatusWaiting:    "waiting",
	StatusInProgress: "in_progress",
	StatusCompleted:  "completed",
	StatusCancelled:  "cancelled",
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid appointment status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus accepts either the name ("in_progress") or the stored code ("1").
func ParseStatus(raw string) (Status, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(raw); err == nil {
		if s := Status(n); s.Valid() {
			return s, nil
		}
		return 0, fmt.Errorf("invalid appointment status %q", raw)
	}
	for s, name := range statusNames {
		if name == raw {
			return s, nil
		}
	}
	return 0, fmt.Errorf("invalid appointment status %q", raw)
}

type Appointment struct {
	ID              int64
	Name            string
	Email           string
	Phone           string
	Purpose         string
	AdditionalNotes string
	QueueNumber     string
	Status          Status
	CreatedTime     time.Time
	LastUpdated     *time.Time
}

// NewAppointment is what the booking flow hands to the store; the store
// assigns ID and QueueNumber.
type NewAppointment struct {
	Name            string
	Email           string
	Phone           string
	Purpose         string
	AdditionalNotes string
	CreatedTime     time.Time
}
