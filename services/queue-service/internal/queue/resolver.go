package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	otelx "github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/otel"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/settings"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// Store is the read side the resolver needs.
type Store interface {
	FindByQueueNumber(ctx context.Context, queueNumber string) (model.Appointment, error)
	CountWaitingBefore(ctx context.Context, datePrefix, queueNumber string) (int, error)
	GetSettings(ctx context.Context) (model.QueueSetting, error)
}

// Status is the live view of one ticket. When Valid is false the ticket does
// not exist and every other field except QueueNumber is a placeholder.
type Status struct {
	Valid                  bool         `json:"is_valid"`
	QueueNumber            string       `json:"queue_number"`
	PeopleAhead            int          `json:"people_ahead"`
	EstimatedWaitTime      int          `json:"estimated_wait_time"`
	Status                 model.Status `json:"status"`
	LastUpdated            time.Time    `json:"last_updated"`
	AppointmentCreatedTime time.Time    `json:"appointment_created_time"`
}

// Position is the 1-based place in line.
func (s Status) Position() int {
	return s.PeopleAhead + 1
}

func invalid(queueNumber string, now time.Time) Status {
	return Status{
		QueueNumber:            queueNumber,
		Status:                 model.StatusWaiting,
		LastUpdated:            now,
		AppointmentCreatedTime: now,
	}
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve computes the position and remaining wait for queueNumber as of now.
// An unknown ticket is not an error; it comes back with Valid false. Store
// failures are returned as is.
func (r *Resolver) Resolve(ctx context.Context, queueNumber string, now time.Time) (st Status, err error) {
	ctx, span := otelx.Tracer("queue").Start(ctx, "queue.Resolve")
	span.SetAttributes(attribute.String("queue.number", queueNumber))
	defer func() { otelx.EndSpan(span, err) }()

	appt, err := r.store.FindByQueueNumber(ctx, queueNumber)
	if errors.Is(err, storage.ErrNotFound) {
		span.SetAttributes(attribute.Bool("queue.valid", false))
		return invalid(queueNumber, now), nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("find appointment: %w", err)
	}

	if appt.Status != model.StatusWaiting {
		return Status{
			Valid:                  true,
			QueueNumber:            appt.QueueNumber,
			Status:                 appt.Status,
			LastUpdated:            now,
			AppointmentCreatedTime: appt.CreatedTime,
		}, nil
	}

	qn, err := model.ParseQueueNumber(appt.QueueNumber)
	if err != nil {
		return Status{}, err
	}
	ahead, err := r.store.CountWaitingBefore(ctx, qn.Prefix(), appt.QueueNumber)
	if err != nil {
		return Status{}, fmt.Errorf("count waiting: %w", err)
	}
	setting, err := settings.Effective(ctx, r.store)
	if err != nil {
		return Status{}, fmt.Errorf("load settings: %w", err)
	}

	span.SetAttributes(attribute.Int("queue.people_ahead", ahead))
	return Status{
		Valid:                  true,
		QueueNumber:            appt.QueueNumber,
		PeopleAhead:            ahead,
		EstimatedWaitTime:      EstimateWait(ahead, setting.AverageWaitTime, appt.CreatedTime, now),
		Status:                 model.StatusWaiting,
		LastUpdated:            now,
		AppointmentCreatedTime: appt.CreatedTime,
	}, nil
}

// EstimateWait budgets avgWait minutes for each customer up to and including
// this one, less the whole minutes already spent waiting. Never negative.
func EstimateWait(peopleAhead, avgWait int, createdTime, now time.Time) int {
	if avgWait <= 0 {
		avgWait = model.DefaultAverageWaitTime
	}
	elapsed := int(now.Sub(createdTime) / time.Minute)
	if elapsed < 0 {
		// clock skew or a ticket created "after" now
		elapsed = 0
	}
	return max(0, (peopleAhead+1)*avgWait-elapsed)
}
