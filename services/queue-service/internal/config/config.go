// Package config loads the queue service settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	libconfig "github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/config"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	ServiceName string
	Port        string
	GRPCPort    string
	LogLevel    string

	StoreDriver   string
	DatabaseURL   string
	DBMaxConns    int32
	MongoURI      string
	MongoDatabase string

	RedisURL         string
	SettingsCacheTTL time.Duration

	KafkaBrokers    []string
	OutboxPollEvery time.Duration

	SMTP SMTP

	AdminJWTSecret     string
	CORSOrigins        []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	PublicBaseURL      string

	Location             *time.Location
	ReminderInterval     time.Duration
	LivePushInterval     time.Duration
	CleanupInterval      time.Duration
	CleanupRetryInterval time.Duration
	Retention            time.Duration

	OTel OTel
}

type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Enabled reports whether mail should go out over SMTP rather than the log.
func (s SMTP) Enabled() bool {
	return s.Host != ""
}

type OTel struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "queue-service")
	v.SetDefault("PORT", "8080")
	v.SetDefault("GRPC_PORT", "9090")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("MONGO_DATABASE", "pharmacy_queue")
	v.SetDefault("SETTINGS_CACHE_TTL", "1m")
	v.SetDefault("OUTBOX_POLL_EVERY", "2s")
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("SMTP_FROM_NAME", "Pharmacy Queue")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("QUEUE_TIMEZONE", "America/Toronto")
	v.SetDefault("REMINDER_INTERVAL", "1m")
	v.SetDefault("LIVE_PUSH_INTERVAL", "15s")
	v.SetDefault("CLEANUP_INTERVAL", "24h")
	v.SetDefault("CLEANUP_RETRY_INTERVAL", "1h")
	v.SetDefault("RETENTION", "4380h")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

// Load reads the environment (and an optional .env file).
func Load() (Config, error) {
	return FromViper(libconfig.New())
}

// FromViper builds and validates a Config from v. Unset keys take their
// defaults.
func FromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	var (
		cfg Config
		err error
	)
	cfg.ServiceName = strings.TrimSpace(v.GetString("SERVICE_NAME"))
	cfg.LogLevel = v.GetString("LOG_LEVEL")
	if cfg.Port, err = libconfig.Port(v, "PORT"); err != nil {
		return Config{}, err
	}
	if cfg.GRPCPort, err = libconfig.Port(v, "GRPC_PORT"); err != nil {
		return Config{}, err
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER")))
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL, err = libconfig.RequiredString(v, "DATABASE_URL"); err != nil {
			return Config{}, err
		}
	case DriverMongo:
		if cfg.MongoURI, err = libconfig.RequiredString(v, "MONGO_URI"); err != nil {
			return Config{}, err
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER must be postgres, mongo or memory (got %q)", cfg.StoreDriver)
	}
	cfg.DBMaxConns = v.GetInt32("DB_MAX_CONNS")
	cfg.MongoDatabase = strings.TrimSpace(v.GetString("MONGO_DATABASE"))

	cfg.RedisURL = strings.TrimSpace(v.GetString("REDIS_URL"))
	cfg.KafkaBrokers = libconfig.List(v, "KAFKA_BROKERS")

	cfg.SMTP = SMTP{
		Host:     strings.TrimSpace(v.GetString("SMTP_HOST")),
		Port:     strings.TrimSpace(v.GetString("SMTP_PORT")),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     strings.TrimSpace(v.GetString("SMTP_FROM")),
		FromName: v.GetString("SMTP_FROM_NAME"),
	}
	if cfg.SMTP.Enabled() {
		if _, err := libconfig.Port(v, "SMTP_PORT"); err != nil {
			return Config{}, err
		}
	}

	cfg.AdminJWTSecret = v.GetString("ADMIN_JWT_SECRET")
	cfg.CORSOrigins = libconfig.List(v, "CORS_ORIGINS")
	cfg.RateLimitPerMinute = v.GetInt("RATE_LIMIT_PER_MINUTE")
	if cfg.RateLimitPerMinute < 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(v.GetString("PUBLIC_BASE_URL")), "/")

	tz := strings.TrimSpace(v.GetString("QUEUE_TIMEZONE"))
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return Config{}, fmt.Errorf("QUEUE_TIMEZONE %q: %w", tz, err)
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"SETTINGS_CACHE_TTL", &cfg.SettingsCacheTTL},
		{"OUTBOX_POLL_EVERY", &cfg.OutboxPollEvery},
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"REMINDER_INTERVAL", &cfg.ReminderInterval},
		{"LIVE_PUSH_INTERVAL", &cfg.LivePushInterval},
		{"CLEANUP_INTERVAL", &cfg.CleanupInterval},
		{"CLEANUP_RETRY_INTERVAL", &cfg.CleanupRetryInterval},
		{"RETENTION", &cfg.Retention},
	} {
		if *d.dst, err = libconfig.PositiveDuration(v, d.key); err != nil {
			return Config{}, err
		}
	}

	cfg.OTel = OTel{
		Enabled:     v.GetBool("OTEL_ENABLED"),
		Endpoint:    strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		SampleRatio: v.GetFloat64("OTEL_SAMPLE_RATIO"),
	}
	return cfg, nil
}
