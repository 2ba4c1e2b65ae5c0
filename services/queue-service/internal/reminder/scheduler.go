package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/otel"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/email"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/queue"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type Store interface {
	ListWaiting(ctx context.Context) ([]model.Appointment, error)
	FindNotification(ctx context.Context, appointmentID int64, notificationType string) (model.Notification, error)
	InsertNotification(ctx context.Context, n *model.Notification) error
}

type Resolver interface {
	Resolve(ctx context.Context, queueNumber string, now time.Time) (queue.Status, error)
}

// Threshold fires its notification type once the estimate is at or below Minutes.
type Threshold struct {
	Minutes int
	Type    string
	Render  func(email.ReminderData) email.Message
}

// DefaultThresholds are evaluated independently, so a ticket first seen at
// 3 minutes gets both reminders in one tick.
var DefaultThresholds = []Threshold{
	{Minutes: 10, Type: model.NotificationTenMinuteReminder, Render: email.TenMinuteReminder},
	{Minutes: 5, Type: model.NotificationFiveMinuteReminder, Render: email.FiveMinuteReminder},
}

type Scheduler struct {
	store      Store
	resolver   Resolver
	sender     email.Sender
	logger     *slog.Logger
	interval   time.Duration
	thresholds []Threshold
	now        func() time.Time
}

type Config struct {
	Interval   time.Duration
	Thresholds []Threshold
	Now        func() time.Time
}

func NewScheduler(store Store, resolver Resolver, sender email.Sender, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = DefaultThresholds
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		store:      store,
		resolver:   resolver,
		sender:     sender,
		logger:     logger,
		interval:   cfg.Interval,
		thresholds: cfg.Thresholds,
		now:        cfg.Now,
	}
}

// Run ticks once straight away and then every interval until ctx is done.
// A tick in flight is allowed to finish; shutdown is seen between ticks.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runTick(context.WithoutCancel(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	sent, err := s.Tick(ctx, s.now())
	if err != nil {
		s.logger.Error("reminder tick failed", "err", err)
		return
	}
	if sent > 0 {
		s.logger.Info("reminders recorded", "count", sent)
	}
}

// Tick evaluates every waiting appointment once and returns how many
// notifications it recorded. The first store or resolver error abandons the
// rest of the tick; rows already written stay.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (recorded int, err error) {
	ctx, span := otelx.Tracer("reminder").Start(ctx, "reminder.Tick")
	defer func() {
		span.SetAttributes(attribute.Int("reminder.recorded", recorded))
		otelx.EndSpan(span, err)
	}()

	waiting, err := s.store.ListWaiting(ctx)
	if err != nil {
		return 0, fmt.Errorf("list waiting: %w", err)
	}
	for _, appt := range waiting {
		n, err := s.remind(ctx, appt, now)
		recorded += n
		if err != nil {
			return recorded, fmt.Errorf("appointment %d: %w", appt.ID, err)
		}
	}
	return recorded, nil
}

func (s *Scheduler) remind(ctx context.Context, appt model.Appointment, now time.Time) (int, error) {
	st, err := s.resolver.Resolve(ctx, appt.QueueNumber, now)
	if err != nil {
		return 0, err
	}
	if !st.Valid || st.Status != model.StatusWaiting {
		return 0, nil
	}

	recorded := 0
	for _, th := range s.thresholds {
		_, err := s.store.FindNotification(ctx, appt.ID, th.Type)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return recorded, err
		}
		if st.EstimatedWaitTime > th.Minutes {
			continue
		}

		msg := th.Render(email.ReminderData{
			Name:              appt.Name,
			QueueNumber:       appt.QueueNumber,
			Position:          st.Position(),
			EstimatedWaitTime: st.EstimatedWaitTime,
		})
		s.deliver(ctx, appt, msg)

		// The marker is written as sent even when the mail bounced so a
		// threshold never fires twice for the same ticket.
		n := model.Notification{
			AppointmentID:    appt.ID,
			Type:             th.Type,
			EmailContent:     msg.Body,
			EmailSent:        true,
			NotificationTime: now,
		}
		if err := s.store.InsertNotification(ctx, &n); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				// another tick recorded it first
				continue
			}
			return recorded, err
		}
		recorded++
	}
	return recorded, nil
}

// deliver never fails the tick; a bounce is only logged.
func (s *Scheduler) deliver(ctx context.Context, appt model.Appointment, msg email.Message) {
	if err := s.sender.Send(ctx, appt.Email, msg.Subject, msg.Body); err != nil {
		s.logger.Error("reminder email failed",
			"appointment_id", appt.ID,
			"queue_number", appt.QueueNumber,
			"err", err,
		)
	}
}
