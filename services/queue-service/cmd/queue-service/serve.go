package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/grpcx"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/httpx"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/kafkax"
	otelx "github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/otel"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/redisx"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/runtime"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/booking"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/cleanup"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/config"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/email"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/handlers"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/outbox"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/queue"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/reminder"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/settings"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const maxBodyBytes = 64 << 10

func runServe(ctx context.Context, cfg config.Config, migrate bool) error {
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	otelShutdown, err := otelx.Setup(ctx, otelx.Config{
		Enabled:      cfg.OTel.Enabled,
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTel.Endpoint,
		SampleRatio:  cfg.OTel.SampleRatio,
	})
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()
	if migrate {
		if err := be.migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
	}

	var store storage.Store = be.store
	checks := be.checks
	var limiter httpx.Middleware
	if cfg.RedisURL != "" {
		rdb, err := redisx.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		defer rdb.Close()
		store = settings.NewCache(store, rdb, cfg.SettingsCacheTTL, logger)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
		if cfg.RateLimitPerMinute > 0 {
			limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, cfg.ServiceName+":rl").Middleware(logger, true)
		}
	} else if cfg.RateLimitPerMinute > 0 {
		limiter = httpx.NewRateLimiter(cfg.RateLimitPerMinute).Middleware()
	}
	if len(cfg.KafkaBrokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	var sender email.Sender = email.NewLogSender(logger)
	if cfg.SMTP.Enabled() {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		})
	} else {
		logger.Warn("SMTP_HOST not set; emails are logged instead of sent")
	}

	resolver := queue.NewResolver(store)
	bookingSvc := booking.NewService(store, resolver, sender, logger, booking.Config{
		Location:      cfg.Location,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	scheduler := reminder.NewScheduler(store, resolver, sender, logger, reminder.Config{
		Interval: cfg.ReminderInterval,
	})
	cleaner := cleanup.NewWorker(store, logger, cleanup.WorkerConfig{
		Interval:  cfg.CleanupInterval,
		Retry:     cfg.CleanupRetryInterval,
		Retention: cfg.Retention,
	})

	workersCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var workers sync.WaitGroup
	start := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workersCtx)
		}()
	}
	start(scheduler.Run)
	start(cleaner.Run)
	if be.pool != nil {
		publisher := outbox.NewPublisher(be.pool, be.outbox, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: cfg.OutboxPollEvery,
		})
		start(publisher.Run)
	}

	grpcSrv, health := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	health.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newHTTPHandler(cfg, logger, store, resolver, bookingSvc, limiter, checks),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		logger.Error("http server error", "err", err)
	}

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	stopWorkers()
	workers.Wait()
	logger.Info("queue service stopped")
	return err
}

func newHTTPHandler(
	cfg config.Config,
	logger *slog.Logger,
	store storage.Store,
	resolver *queue.Resolver,
	booker *booking.Service,
	limiter httpx.Middleware,
	checks []runtime.ReadyCheck,
) http.Handler {
	mux := http.NewServeMux()
	runtime.RegisterProbes(mux, checks...)

	routes := handlers.Routes{
		Queue: handlers.NewQueueHandler(resolver, store, logger, handlers.QueueConfig{
			PublicBaseURL:  cfg.PublicBaseURL,
			AllowedOrigins: cfg.CORSOrigins,
			PushEvery:      cfg.LivePushInterval,
		}),
		Booking:        handlers.NewBookingHandler(booker, logger, nil),
		RequestTimeout: cfg.RequestTimeout,
	}
	if cfg.AdminJWTSecret != "" {
		routes.Admin = handlers.NewAdminHandler(store, logger, cfg.Location, nil)
		routes.AdminSecret = cfg.AdminJWTSecret
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set; staff API disabled")
	}
	handlers.Register(mux, routes)

	chain := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: cfg.CORSOrigins}),
	}
	if limiter != nil {
		chain = append(chain, limiter)
	}
	chain = append(chain, httpx.WithBodyLimit(maxBodyBytes))
	return otelhttp.NewHandler(httpx.Chain(mux, chain...), cfg.ServiceName)
}
