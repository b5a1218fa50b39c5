package config

import (
	"fmt"
	"strings"
	"time"

	"feedwatch/internal/domain"
)

// ParseDurationField parses an optional non-negative duration. Empty is 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %v: %w", path, raw, err, domain.ErrConfiguration)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0: %w", path, domain.ErrConfiguration)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
