package utils

import (
	"errors"
	"strings"
	"time"
)

// ErrBadTime is returned for values that are neither a date nor RFC 3339.
var ErrBadTime = errors.New("expected YYYY-MM-DD or RFC 3339 timestamp")

// ParseDay parses a YYYY-MM-DD calendar day as UTC midnight.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, ErrBadTime
	}
	return t, nil
}

// ParseInstant accepts an RFC 3339 timestamp (any offset, normalized to UTC)
// or a bare day, which means that day's UTC midnight.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return ParseDay(s)
}
