// Package config holds the shared configuration loader. Values come from the
// process environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// New returns a viper instance reading from the environment. A .env file in
// the working directory (or the given files) is loaded first when present;
// real environment variables win over .env entries.
func New(envFiles ...string) *viper.Viper {
	_ = godotenv.Load(envFiles...)
	v := viper.New()
	v.AutomaticEnv()
	return v
}

// RequiredString returns the value of key or an error if it is unset.
func RequiredString(v *viper.Viper, key string) (string, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// Port validates key as a TCP port.
func Port(v *viper.Viper, key string) (string, error) {
	raw := strings.TrimSpace(v.GetString(key))
	p, err := strconv.Atoi(raw)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, raw)
	}
	return raw, nil
}

// PositiveDuration parses key as a Go duration and rejects zero or negative values.
func PositiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 1m or 24h (got %q)", key, raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %s)", key, d)
	}
	return d, nil
}

// List splits a comma separated value, dropping blanks.
func List(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range strings.Split(v.GetString(key), ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
