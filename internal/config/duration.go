package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string. Empty means zero.
// path only labels the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOr returns the parsed duration, or def when raw is empty, zero
// or invalid. Config passed through Validate never hits the invalid case.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (w WeatherConfig) TimeoutOr(def time.Duration) time.Duration { return DurationOr(w.Timeout, def) }

func (g GeoConfig) TimeoutOr(def time.Duration) time.Duration { return DurationOr(g.Timeout, def) }

func (h HostConfig) BusyTimeoutOr(def time.Duration) time.Duration {
	return DurationOr(h.BusyTimeout, def)
}

// RunTimeout returns the per-run bound. An explicit "0s" disables it.
func (s SchedulerConfig) RunTimeout(def time.Duration) time.Duration {
	if strings.TrimSpace(s.Timeout) == "" {
		return def
	}
	d, _ := ParseDurationField("", s.Timeout)
	return d
}
