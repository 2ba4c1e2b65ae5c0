package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPurge_UsesRetentionCutoff(t *testing.T) {
	now := time.Date(2025, 9, 1, 3, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	store.Put(model.Appointment{QueueNumber: "PHAR-20250201-001", CreatedTime: now.Add(-4381 * time.Hour)})
	store.Put(model.Appointment{QueueNumber: "PHAR-20250302-001", CreatedTime: now.Add(-4379 * time.Hour)})

	w := NewWorker(store, discard(), WorkerConfig{Now: func() time.Time { return now }})
	deleted, err := w.Purge(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	left, _ := store.ListAppointments(context.Background(), storage.ListFilter{})
	if len(left) != 1 || left[0].QueueNumber != "PHAR-20250302-001" {
		t.Fatalf("unexpected remaining appointments %+v", left)
	}
}

type flakyStore struct {
	mu    sync.Mutex
	calls int
	fail  int
}

func (f *flakyStore) DeleteCreatedBefore(context.Context, time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return 0, errors.New("db unavailable")
	}
	return 0, nil
}

func (f *flakyStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRun_RetriesSoonerAfterFailure(t *testing.T) {
	store := &flakyStore{fail: 1}
	w := NewWorker(store, discard(), WorkerConfig{
		Interval: time.Hour,
		Retry:    10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	// one failed pass, one retry, then the hour long interval
	if got := store.count(); got != 2 {
		t.Fatalf("expected 2 passes, got %d", got)
	}
}
