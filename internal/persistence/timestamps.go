package persistence

import (
	"fmt"
	"time"
)

// TimestampLayout is the naive ISO-8601 form used for stored timestamps.
// Lexical order of formatted values matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05"

// FormatTimestamp renders t as wall-clock time in loc.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimestampLayout)
}

// ParseTimestamp reads a stored timestamp as wall-clock time in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(TimestampLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}
