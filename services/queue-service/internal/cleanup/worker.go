package cleanup

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/otel"
	"go.opentelemetry.io/otel/attribute"
)

type Store interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Worker struct {
	store     Store
	logger    *slog.Logger
	interval  time.Duration
	retry     time.Duration
	retention time.Duration
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	Retry     time.Duration
	Retention time.Duration
	Now       func() time.Time
}

func NewWorker(store Store, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Retry <= 0 {
		cfg.Retry = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 4380 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		store:     store,
		logger:    logger,
		interval:  cfg.Interval,
		retry:     cfg.Retry,
		retention: cfg.Retention,
		now:       cfg.Now,
	}
}

// Run purges immediately, then again after Interval, or after Retry when the
// previous pass failed.
func (w *Worker) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		wait := w.interval
		if _, err := w.Purge(ctx); err != nil {
			w.logger.Error("appointment cleanup failed", "err", err, "retry_in", w.retry.String())
			wait = w.retry
		}
		timer.Reset(wait)
	}
}

// Purge deletes appointments older than the retention window.
func (w *Worker) Purge(ctx context.Context) (deleted int64, err error) {
	ctx, span := otelx.Tracer("cleanup").Start(ctx, "cleanup.Purge")
	defer func() { otelx.EndSpan(span, err) }()

	cutoff := w.now().Add(-w.retention)
	span.SetAttributes(attribute.String("cleanup.cutoff", cutoff.UTC().Format(time.RFC3339)))

	deleted, err = w.store.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("cleanup.deleted", deleted))
	w.logger.Info("old appointments removed", "count", deleted, "cutoff", cutoff)
	return deleted, nil
}
