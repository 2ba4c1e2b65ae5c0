package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyz(t *testing.T) {
	healthy := ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }}
	broken := ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}

	mux := http.NewServeMux()
	RegisterProbes(mux, healthy)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	mux = http.NewServeMux()
	RegisterProbes(mux, healthy, broken)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "connection refused") {
		t.Fatalf("expected failure detail in body, got %q", rw.Body.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerCarriesService(t *testing.T) {
	var buf strings.Builder
	logger := newLogger(&buf, "queue-service", "info")
	logger.Info("hello")
	if !strings.Contains(buf.String(), `"service":"queue-service"`) {
		t.Fatalf("expected service attribute, got %s", buf.String())
	}
}
