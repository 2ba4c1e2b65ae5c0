package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

type countingStore struct {
	*storage.Memory
	reads int
}

func (s *countingStore) GetSettings(ctx context.Context) (model.QueueSetting, error) {
	s.reads++
	return s.Memory.GetSettings(ctx)
}

func newTestCache(t *testing.T) (*Cache, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := &countingStore{Memory: storage.NewMemory()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCache(store, rdb, time.Minute, logger), store, mr
}

func TestCache_ServesRepeatReadsFromRedis(t *testing.T) {
	ctx := context.Background()
	c, store, mr := newTestCache(t)
	saved := model.DefaultQueueSetting()
	saved.AverageWaitTime = 20
	saved.LastUpdated = time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	if err := store.Memory.SaveSettings(ctx, saved); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetSettings(ctx)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if got.AverageWaitTime != 20 {
			t.Fatalf("expected 20, got %d", got.AverageWaitTime)
		}
	}
	if store.reads != 1 {
		t.Fatalf("expected one store read, got %d", store.reads)
	}
	if !mr.Exists(cacheKey) {
		t.Fatal("expected cached settings key")
	}
	if ttl := mr.TTL(cacheKey); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", ttl)
	}
}

func TestCache_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	c, store, mr := newTestCache(t)
	if err := c.SaveSettings(ctx, model.DefaultQueueSetting()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := c.GetSettings(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}

	updated := model.DefaultQueueSetting()
	updated.AverageWaitTime = 5
	if err := c.SaveSettings(ctx, updated); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mr.Exists(cacheKey) {
		t.Fatal("expected cache key to be dropped")
	}
	got, err := c.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AverageWaitTime != 5 || store.reads != 2 {
		t.Fatalf("expected fresh read with 5, got %d after %d reads", got.AverageWaitTime, store.reads)
	}
}

func TestCache_FallsBackWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	c, store, mr := newTestCache(t)
	if err := store.Memory.SaveSettings(ctx, model.DefaultQueueSetting()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mr.Close()

	got, err := c.GetSettings(ctx)
	if err != nil {
		t.Fatalf("expected store fallback, got %v", err)
	}
	if got.AverageWaitTime != model.DefaultAverageWaitTime {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestEffective_DefaultsWhenUnset(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)
	if _, err := c.GetSettings(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	s, err := Effective(ctx, c)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if s.AverageWaitTime != 15 || s.MaxDailyBookings != 50 {
		t.Fatalf("unexpected defaults %+v", s)
	}
}
