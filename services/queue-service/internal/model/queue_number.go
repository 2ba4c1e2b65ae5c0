package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	QueueNumberPrefix = "PHAR"
	queueDateLayout   = "20060102"
	// MaxDailySequence is the largest sequence that fits the three digit suffix.
	MaxDailySequence = 999
)

var ErrMalformedQueueNumber = errors.New("malformed queue number")

// QueueNumber is the parsed form of PHAR-<YYYYMMDD>-<NNN>.
type QueueNumber struct {
	Date     string
	Sequence int
}

func FormatQueueNumber(day time.Time, sequence int) string {
	return fmt.Sprintf("%s-%s-%03d", QueueNumberPrefix, day.Format(queueDateLayout), sequence)
}

func ParseQueueNumber(raw string) (QueueNumber, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 3 || parts[0] != QueueNumberPrefix {
		return QueueNumber{}, fmt.Errorf("%w: %q", ErrMalformedQueueNumber, raw)
	}
	if len(parts[1]) != len(queueDateLayout) {
		return QueueNumber{}, fmt.Errorf("%w: %q", ErrMalformedQueueNumber, raw)
	}
	if _, err := time.Parse(queueDateLayout, parts[1]); err != nil {
		return QueueNumber{}, fmt.Errorf("%w: %q", ErrMalformedQueueNumber, raw)
	}
	if len(parts[2]) != 3 {
		return QueueNumber{}, fmt.Errorf("%w: %q", ErrMalformedQueueNumber, raw)
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 1 {
		return QueueNumber{}, fmt.Errorf("%w: %q", ErrMalformedQueueNumber, raw)
	}
	return QueueNumber{Date: parts[1], Sequence: seq}, nil
}

// Prefix is the shared leading part of every queue number booked on q.Date.
func (q QueueNumber) Prefix() string {
	return DatePrefix(q.Date)
}

func (q QueueNumber) String() string {
	return fmt.Sprintf("%s-%s-%03d", QueueNumberPrefix, q.Date, q.Sequence)
}

// DatePrefix returns "PHAR-<date>-" for an eight digit date.
func DatePrefix(date string) string {
	return QueueNumberPrefix + "-" + date + "-"
}

// DayPrefix returns the queue number prefix for bookings made on day.
func DayPrefix(day time.Time) string {
	return DatePrefix(day.Format(queueDateLayout))
}
