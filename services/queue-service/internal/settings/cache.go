package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

const cacheKey = "queue:settings"

// Cache is a storage.Store whose settings reads go through Redis. Saves
// write to the store first and then drop the cached copy.
type Cache struct {
	storage.Store
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCache(store storage.Store, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{Store: store, rdb: rdb, ttl: ttl, logger: logger}
}

type cachedSetting struct {
	AverageWaitTime   int       `json:"average_wait_time"`
	MaxDailyBookings  int       `json:"max_daily_bookings"`
	WorkingHoursStart string    `json:"working_hours_start"`
	WorkingHoursEnd   string    `json:"working_hours_end"`
	IsHoliday         bool      `json:"is_holiday"`
	LastUpdated       time.Time `json:"last_updated"`
}

func (c *Cache) GetSettings(ctx context.Context) (model.QueueSetting, error) {
	raw, err := c.rdb.Get(ctx, cacheKey).Bytes()
	switch {
	case err == nil:
		var cs cachedSetting
		if jsonErr := json.Unmarshal(raw, &cs); jsonErr == nil {
			return model.QueueSetting(cs), nil
		}
		c.logger.Warn("discarding unreadable cached settings")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("settings cache read failed", "err", err)
	}

	s, err := c.Store.GetSettings(ctx)
	if err != nil {
		return model.QueueSetting{}, err
	}
	if b, err := json.Marshal(cachedSetting(s)); err == nil {
		if err := c.rdb.Set(ctx, cacheKey, b, c.ttl).Err(); err != nil {
			c.logger.Warn("settings cache write failed", "err", err)
		}
	}
	return s, nil
}

func (c *Cache) SaveSettings(ctx context.Context, s model.QueueSetting) error {
	if err := c.Store.SaveSettings(ctx, s); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, cacheKey).Err(); err != nil {
		c.logger.Warn("settings cache invalidation failed", "err", err)
	}
	return nil
}

// Getter is anything that can load the saved queue settings.
type Getter interface {
	GetSettings(ctx context.Context) (model.QueueSetting, error)
}

// Effective returns the saved settings, or the defaults when none were saved.
func Effective(ctx context.Context, g Getter) (model.QueueSetting, error) {
	s, err := g.GetSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return model.DefaultQueueSetting(), nil
	}
	return s, err
}
