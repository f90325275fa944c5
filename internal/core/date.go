package core

import (
	"fmt"
	"strings"
	"time"
)

const MonthLayout = "2006-01"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate normalizes a caller supplied date to a UTC timestamp.
// Inputs without a zone are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// MonthBucket returns the YYYY-MM bucket of t in UTC.
func MonthBucket(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}
