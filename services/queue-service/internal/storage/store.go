package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrDailyLimitReached = errors.New("daily booking limit reached")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the full persistence surface of the queue service. The resolver
// and scheduler depend on narrower interfaces declared in their own packages.
type Store interface {
	FindByQueueNumber(ctx context.Context, queueNumber string) (model.Appointment, error)
	// CountWaitingBefore counts Waiting appointments whose queue number starts
	// with datePrefix and sorts strictly before queueNumber.
	CountWaitingBefore(ctx context.Context, datePrefix, queueNumber string) (int, error)
	// GetSettings returns ErrNotFound when no settings have been saved.
	GetSettings(ctx context.Context) (model.QueueSetting, error)
	SaveSettings(ctx context.Context, s model.QueueSetting) error

	ListWaiting(ctx context.Context) ([]model.Appointment, error)
	FindNotification(ctx context.Context, appointmentID int64, notificationType string) (model.Notification, error)
	// InsertNotification assigns n.ID. A second row of the same type for the
	// same appointment is rejected with ErrDuplicate.
	InsertNotification(ctx context.Context, n *model.Notification) error
	MarkNotificationSent(ctx context.Context, notificationID int64) error

	// CreateAppointment assigns the next queue number for the calendar date
	// of day (in day's location), refusing with ErrDailyLimitReached once
	// maxDaily appointments exist for that date.
	CreateAppointment(ctx context.Context, a model.NewAppointment, day time.Time, maxDaily int) (model.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (model.Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status, notes string, now time.Time) (model.Appointment, error)
	// CancelAppointment moves a Waiting or Completed appointment to Cancelled.
	CancelAppointment(ctx context.Context, id int64, now time.Time) (model.Appointment, error)
	// DeleteCreatedBefore removes appointments (and their notifications)
	// created before cutoff and returns how many appointments were removed.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ListFilter narrows ListAppointments. A zero DayPrefix lists every day.
type ListFilter struct {
	DayPrefix string
	Limit     int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 200
	}
	return f.Limit
}

// nextSequence applies the daily cap to the number of appointments already
// booked for the day.
func nextSequence(existing, maxDaily int) (int, error) {
	if maxDaily > model.MaxDailySequence || maxDaily <= 0 {
		maxDaily = model.MaxDailySequence
	}
	if existing >= maxDaily {
		return 0, ErrDailyLimitReached
	}
	return existing + 1, nil
}

// cancellable reports whether staff may cancel an appointment in status s.
func cancellable(s model.Status) bool {
	return s == model.StatusWaiting || s == model.StatusCompleted
}
