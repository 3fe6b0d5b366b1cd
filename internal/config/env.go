package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the value of key, or fallback when unset or blank.
func String(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Int returns key parsed as an int. Unparseable values are logged and
// replaced by fallback.
func Int(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: ignoring invalid integer", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return n
}

// Duration returns key parsed with time.ParseDuration. A bare number is read
// as seconds.
func Duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: ignoring invalid duration", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return d
}

// Bool returns key parsed with strconv.ParseBool, or false.
func Bool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return b
}
