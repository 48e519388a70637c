// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDurationOr parses a duration string, returning the fallback on empty or invalid input.
// Used for config fields stored as strings in TOML (e.g., "5m", "300ms").
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ParseDuration parses a duration string with day suffix support.
// Accepts standard Go durations ("4h", "300ms") plus a "d" suffix ("3d" = 72h),
// which time.ParseDuration does not understand.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q: %w", s, err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}

// FormatRelativeDays formats a day count as a Jira-style relative date expression.
// Jira JQL accepts "-30d" to mean 30 days before now.
func FormatRelativeDays(days int) string {
	return fmt.Sprintf("-%dd", days)
}

// WindowStart returns the start of an activity window ending at now.
func WindowStart(now time.Time, windowDays int) time.Time {
	return now.AddDate(0, 0, -windowDays)
}
