package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 1, 15, hour, min, 0, 0, time.UTC)
}

func seededStore(t *testing.T) *storage.Memory {
	t.Helper()
	s := storage.NewMemory()
	if err := s.SaveSettings(context.Background(), model.QueueSetting{AverageWaitTime: 15, MaxDailyBookings: 50}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	s.Put(model.Appointment{QueueNumber: "PHAR-20250115-001", Status: model.StatusWaiting, CreatedTime: at(9, 0)})
	s.Put(model.Appointment{QueueNumber: "PHAR-20250115-002", Status: model.StatusWaiting, CreatedTime: at(9, 5)})
	return s
}

func TestResolve_SecondInLine(t *testing.T) {
	r := NewResolver(seededStore(t))
	st, err := r.Resolve(context.Background(), "PHAR-20250115-002", at(9, 5))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !st.Valid || st.PeopleAhead != 1 || st.EstimatedWaitTime != 30 {
		t.Fatalf("expected valid, 1 ahead, 30 min; got %+v", st)
	}
	if st.Status != model.StatusWaiting || !st.AppointmentCreatedTime.Equal(at(9, 5)) {
		t.Fatalf("unexpected status fields %+v", st)
	}
	if st.Position() != 2 {
		t.Fatalf("expected position 2, got %d", st.Position())
	}
}

func TestResolve_ElapsedTimeDecaysToZero(t *testing.T) {
	r := NewResolver(seededStore(t))
	st, err := r.Resolve(context.Background(), "PHAR-20250115-001", at(9, 20))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if st.PeopleAhead != 0 || st.EstimatedWaitTime != 0 {
		t.Fatalf("expected 0 ahead and 0 min, got %+v", st)
	}
}

func TestResolve_PartialMinutesAreFloored(t *testing.T) {
	r := NewResolver(seededStore(t))
	st, err := r.Resolve(context.Background(), "PHAR-20250115-001", at(9, 7).Add(59*time.Second))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if st.EstimatedWaitTime != 8 {
		t.Fatalf("expected 15-7=8, got %d", st.EstimatedWaitTime)
	}
}

func TestResolve_UnknownTicketIsInvalid(t *testing.T) {
	r := NewResolver(seededStore(t))
	now := at(10, 0)
	for _, qn := range []string{"PHAR-20250115-999", "nonsense", ""} {
		st, err := r.Resolve(context.Background(), qn, now)
		if err != nil {
			t.Fatalf("resolve %q: %v", qn, err)
		}
		if st.Valid || st.PeopleAhead != 0 || st.EstimatedWaitTime != 0 {
			t.Fatalf("expected invalid sentinel for %q, got %+v", qn, st)
		}
		if st.QueueNumber != qn || st.Status != model.StatusWaiting {
			t.Fatalf("unexpected sentinel fields %+v", st)
		}
		if !st.LastUpdated.Equal(now) || !st.AppointmentCreatedTime.Equal(now) {
			t.Fatalf("expected sentinel timestamps to be now, got %+v", st)
		}
	}
}

func TestResolve_TerminalStatuses(t *testing.T) {
	s := seededStore(t)
	s.Put(model.Appointment{QueueNumber: "PHAR-20250115-003", Status: model.StatusCompleted, CreatedTime: at(9, 10)})
	s.Put(model.Appointment{QueueNumber: "PHAR-20250115-004", Status: model.StatusCancelled, CreatedTime: at(9, 12)})
	s.Put(model.Appointment{QueueNumber: "PHAR-20250115-005", Status: model.StatusInProgress, CreatedTime: at(9, 14)})
	r := NewResolver(s)

	for _, tc := range []struct {
		qn   string
		want model.Status
	}{
		{"PHAR-20250115-003", model.StatusCompleted},
		{"PHAR-20250115-004", model.StatusCancelled},
		{"PHAR-20250115-005", model.StatusInProgress},
	} {
		st, err := r.Resolve(context.Background(), tc.qn, at(9, 15))
		if err != nil {
			t.Fatalf("resolve %s: %v", tc.qn, err)
		}
		if !st.Valid || st.PeopleAhead != 0 || st.EstimatedWaitTime != 0 || st.Status != tc.want {
			t.Fatalf("expected terminal %s for %s, got %+v", tc.want, tc.qn, st)
		}
	}
}

func TestResolve_IgnoresServedAndOtherDays(t *testing.T) {
	s := seededStore(t)
	s.Put(model.Appointment{QueueNumber: "PHAR-20250114-050", Status: model.StatusWaiting, CreatedTime: at(8, 0).AddDate(0, 0, -1)})
	s.Put(model.Appointment{QueueNumber: "PHAR-20250115-003", Status: model.StatusWaiting, CreatedTime: at(9, 10)})
	if _, err := s.UpdateStatus(context.Background(), 1, model.StatusCompleted, "", at(9, 10)); err != nil {
		t.Fatalf("update: %v", err)
	}
	r := NewResolver(s)

	st, err := r.Resolve(context.Background(), "PHAR-20250115-003", at(9, 10))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if st.PeopleAhead != 1 {
		t.Fatalf("expected only -002 ahead, got %d", st.PeopleAhead)
	}
	if st.EstimatedWaitTime != 30 {
		t.Fatalf("expected 30, got %d", st.EstimatedWaitTime)
	}
}

func TestResolve_DefaultsAverageWaitWithoutSettings(t *testing.T) {
	s := storage.NewMemory()
	s.Put(model.Appointment{QueueNumber: "PHAR-20250115-001", Status: model.StatusWaiting, CreatedTime: at(9, 0)})
	st, err := NewResolver(s).Resolve(context.Background(), "PHAR-20250115-001", at(9, 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if st.EstimatedWaitTime != 15 {
		t.Fatalf("expected default 15, got %d", st.EstimatedWaitTime)
	}
}

func TestResolve_IsIdempotent(t *testing.T) {
	r := NewResolver(seededStore(t))
	now := at(9, 12)
	a, err := r.Resolve(context.Background(), "PHAR-20250115-002", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, err := r.Resolve(context.Background(), "PHAR-20250115-002", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical results, got %+v and %+v", a, b)
	}
}

type failingStore struct {
	*storage.Memory
}

var errStoreDown = errors.New("store down")

func (failingStore) CountWaitingBefore(context.Context, string, string) (int, error) {
	return 0, errStoreDown
}

func TestResolve_PropagatesStoreErrors(t *testing.T) {
	r := NewResolver(failingStore{Memory: seededStore(t)})
	if _, err := r.Resolve(context.Background(), "PHAR-20250115-002", at(9, 5)); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestEstimateWait_NeverNegative(t *testing.T) {
	created := at(9, 0)
	for _, tc := range []struct {
		ahead, avg int
		now        time.Time
		want       int
	}{
		{0, 15, at(9, 0), 15},
		{2, 10, at(9, 5), 25},
		{0, 15, at(12, 0), 0},
		{3, 15, at(8, 0), 60},
		{1, 0, at(9, 0), 30},
	} {
		if got := EstimateWait(tc.ahead, tc.avg, created, tc.now); got != tc.want {
			t.Fatalf("EstimateWait(%d, %d, %s): expected %d, got %d", tc.ahead, tc.avg, tc.now.Format("15:04"), tc.want, got)
		}
	}
}
