package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/db"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/runtime"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/config"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/outbox"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
)

// backend is the opened store plus what the rest of main needs to know about it.
type backend struct {
	store storage.Store
	// pool is set only for postgres; the outbox publisher needs it.
	pool    *db.Pool
	outbox  *outbox.Repository
	checks  []runtime.ReadyCheck
	migrate func(context.Context) error
	close   func()
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := outbox.NewRepository()
		pg := storage.NewPostgres(pool, repo)
		return &backend{
			store:   pg,
			pool:    pool,
			outbox:  repo,
			checks:  []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
			migrate: pg.Migrate,
			close:   pool.Close,
		}, nil

	case config.DriverMongo:
		client, m, err := storage.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return &backend{
			store:   m,
			checks:  []runtime.ReadyCheck{{Name: "mongo", Check: m.Ping}},
			migrate: m.EnsureIndexes,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.Disconnect(ctx)
			},
		}, nil

	default:
		return &backend{
			store:   storage.NewMemory(),
			migrate: func(context.Context) error { return nil },
			close:   func() {},
		}, nil
	}
}
