package reminder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/queue"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func at(hour, min int) time.Time {
	return time.Date(2025, 1, 15, hour, min, 0, 0, time.UTC)
}

func newScheduler(t *testing.T, sender *fakeSender) (*Scheduler, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	if err := store.SaveSettings(context.Background(), model.QueueSetting{AverageWaitTime: 15, MaxDailyBookings: 50}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(store, queue.NewResolver(store), sender, logger, Config{}), store
}

func putWaiting(store *storage.Memory, qn string, created time.Time) model.Appointment {
	return store.Put(model.Appointment{
		Name:        "Ana",
		Email:       "ana@example.com",
		QueueNumber: qn,
		Status:      model.StatusWaiting,
		CreatedTime: created,
	})
}

func TestTick_BothRemindersWhenFirstSeenUnderFiveMinutes(t *testing.T) {
	sender := &fakeSender{}
	s, store := newScheduler(t, sender)
	appt := putWaiting(store, "PHAR-20250115-001", at(9, 0))

	// 15 - 12 elapsed = 3 minutes left
	n, err := s.Tick(context.Background(), at(9, 12))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 notifications, got %d", n)
	}
	rows := store.Notifications(appt.ID)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	types := map[string]bool{}
	for _, r := range rows {
		types[r.Type] = true
		if !r.EmailSent || r.EmailContent == "" || !r.NotificationTime.Equal(at(9, 12)) {
			t.Fatalf("unexpected row %+v", r)
		}
	}
	if !types[model.NotificationTenMinuteReminder] || !types[model.NotificationFiveMinuteReminder] {
		t.Fatalf("expected both reminder types, got %v", types)
	}
	if sender.count() != 2 {
		t.Fatalf("expected 2 emails, got %d", sender.count())
	}

	n, err = s.Tick(context.Background(), at(9, 13))
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if n != 0 || len(store.Notifications(appt.ID)) != 2 || sender.count() != 2 {
		t.Fatalf("expected no new rows or mail, got %d new", n)
	}
}

func TestTick_ThresholdsFireIndependentlyOverTime(t *testing.T) {
	sender := &fakeSender{}
	s, store := newScheduler(t, sender)
	appt := putWaiting(store, "PHAR-20250115-001", at(9, 0))

	steps := []struct {
		now   time.Time
		added int
	}{
		{at(9, 0), 0},  // 15 left
		{at(9, 5), 1},  // 10 left, ten minute reminder
		{at(9, 7), 0},  // 8 left
		{at(9, 10), 1}, // 5 left, five minute reminder
		{at(9, 30), 0}, // 0 left, nothing new
	}
	for _, step := range steps {
		n, err := s.Tick(context.Background(), step.now)
		if err != nil {
			t.Fatalf("tick at %s: %v", step.now.Format("15:04"), err)
		}
		if n != step.added {
			t.Fatalf("tick at %s: expected %d, got %d", step.now.Format("15:04"), step.added, n)
		}
	}
	if got := len(store.Notifications(appt.ID)); got != 2 {
		t.Fatalf("expected 2 rows total, got %d", got)
	}
}

func TestTick_NoRepeatAfterEstimateRises(t *testing.T) {
	sender := &fakeSender{}
	s, store := newScheduler(t, sender)
	putWaiting(store, "PHAR-20250115-001", at(9, 0))

	if n, err := s.Tick(context.Background(), at(9, 6)); err != nil || n != 1 {
		t.Fatalf("expected ten minute reminder, got %d %v", n, err)
	}
	// staff slows the queue down; estimate climbs back above 10
	if err := store.SaveSettings(context.Background(), model.QueueSetting{AverageWaitTime: 60, MaxDailyBookings: 50}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if n, err := s.Tick(context.Background(), at(9, 7)); err != nil || n != 0 {
		t.Fatalf("expected nothing, got %d %v", n, err)
	}
	if err := store.SaveSettings(context.Background(), model.QueueSetting{AverageWaitTime: 15, MaxDailyBookings: 50}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if n, err := s.Tick(context.Background(), at(9, 8)); err != nil || n != 0 {
		t.Fatalf("expected ten minute reminder not repeated, got %d %v", n, err)
	}
}

func TestTick_MailFailureStillRecordsMarker(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	s, store := newScheduler(t, sender)
	first := putWaiting(store, "PHAR-20250115-001", at(9, 0))
	second := putWaiting(store, "PHAR-20250115-002", at(8, 40))

	n, err := s.Tick(context.Background(), at(9, 15))
	if err != nil {
		t.Fatalf("tick should not fail on mail errors: %v", err)
	}
	// -001: 15-15=0 -> 2 rows; -002: 30-35 -> 0 -> 2 rows
	if n != 4 {
		t.Fatalf("expected 4 rows, got %d", n)
	}
	for _, id := range []int64{first.ID, second.ID} {
		for _, r := range store.Notifications(id) {
			if !r.EmailSent {
				t.Fatalf("expected marker recorded as sent after failure, got %+v", r)
			}
		}
	}
	if n, _ := s.Tick(context.Background(), at(9, 16)); n != 0 {
		t.Fatalf("expected no retry after failed delivery, got %d", n)
	}
}

func TestTick_SkipsTicketsAboveThreshold(t *testing.T) {
	sender := &fakeSender{}
	s, store := newScheduler(t, sender)
	putWaiting(store, "PHAR-20250115-001", at(9, 0))
	second := putWaiting(store, "PHAR-20250115-002", at(9, 0))

	if _, err := s.Tick(context.Background(), at(9, 1)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(store.Notifications(second.ID)) != 0 {
		t.Fatal("expected no reminder for a ticket 29 minutes out")
	}
}

type brokenStore struct {
	*storage.Memory
}

var errListFailed = errors.New("list failed")

func (brokenStore) ListWaiting(context.Context) ([]model.Appointment, error) {
	return nil, errListFailed
}

func TestTick_SurfacesStoreErrors(t *testing.T) {
	store := brokenStore{Memory: storage.NewMemory()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(store, queue.NewResolver(store), &fakeSender{}, logger, Config{})
	if _, err := s.Tick(context.Background(), at(9, 0)); !errors.Is(err, errListFailed) {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestRun_TicksImmediatelyAndStops(t *testing.T) {
	sender := &fakeSender{}
	store := storage.NewMemory()
	putWaiting(store, "PHAR-20250115-001", at(9, 0))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(store, queue.NewResolver(store), sender, logger, Config{
		Interval: time.Hour,
		Now:      func() time.Time { return at(9, 14) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sender.count() != 2 {
		t.Fatalf("expected first tick to send 2 reminders, got %d", sender.count())
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// flakyStore fails the first ListWaiting and serves the rest from memory.
type flakyStore struct {
	*storage.Memory
	mu    sync.Mutex
	calls int
}

func (f *flakyStore) ListWaiting(ctx context.Context) ([]model.Appointment, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		return nil, errListFailed
	}
	return f.Memory.ListWaiting(ctx)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_KeepsTickingAfterError(t *testing.T) {
	sender := &fakeSender{}
	store := &flakyStore{Memory: storage.NewMemory()}
	appt := putWaiting(store.Memory, "PHAR-20250115-001", at(9, 0))
	logs := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	s := NewScheduler(store, queue.NewResolver(store), sender, logger, Config{
		Interval: 10 * time.Millisecond,
		Now:      func() time.Time { return at(9, 14) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if sender.count() != 2 {
		t.Fatalf("expected a later tick to send 2 reminders, got %d", sender.count())
	}
	if got := len(store.Notifications(appt.ID)); got != 2 {
		t.Fatalf("expected 2 rows after recovery, got %d", got)
	}
	if !strings.Contains(logs.String(), "reminder tick failed") {
		t.Fatalf("expected the failed tick to be logged, got %q", logs.String())
	}
}
