package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestPort(t *testing.T) {
	v := viper.New()
	v.Set("PORT", "8080")
	if got, err := Port(v, "PORT"); err != nil || got != "8080" {
		t.Fatalf("expected 8080, got %q (%v)", got, err)
	}
	v.Set("PORT", "70000")
	if _, err := Port(v, "PORT"); err == nil {
		t.Fatal("expected error for out of range port")
	}
}

func TestPositiveDuration(t *testing.T) {
	v := viper.New()
	v.Set("REMINDER_INTERVAL", "1m")
	d, err := PositiveDuration(v, "REMINDER_INTERVAL")
	if err != nil || d != time.Minute {
		t.Fatalf("expected 1m, got %s (%v)", d, err)
	}
	v.Set("REMINDER_INTERVAL", "0s")
	if _, err := PositiveDuration(v, "REMINDER_INTERVAL"); err == nil {
		t.Fatal("expected error for zero duration")
	}
	v.Set("REMINDER_INTERVAL", "soon")
	if _, err := PositiveDuration(v, "REMINDER_INTERVAL"); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestListAndRequired(t *testing.T) {
	v := viper.New()
	v.Set("CORS_ORIGINS", " http://a.test, ,http://b.test ")
	got := List(v, "CORS_ORIGINS")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected list %v", got)
	}
	if _, err := RequiredString(v, "DATABASE_URL"); err == nil {
		t.Fatal("expected error for missing key")
	}
}
