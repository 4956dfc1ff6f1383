package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/appointment-booking/internal/application"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// localLayouts are accepted for timestamps without an offset; they are read
// in the service location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("is required")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("must be an ISO 8601 timestamp")
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("is required")
	}
	t, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

// parseClock converts HH:MM into an offset from midnight.
func parseClock(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("is required")
	}
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("must be a time in HH:MM format")
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// weekdayNames accepts full lower-case names and their three letter forms.
var weekdayNames = func() map[string]time.Weekday {
	names := make(map[string]time.Weekday, 14)
	for day := time.Sunday; day <= time.Saturday; day++ {
		full := strings.ToLower(day.String())
		names[full] = day
		names[full[:3]] = day
	}
	return names
}()

func parseWeekdays(values []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(values))
	for _, value := range values {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(value))]
		if !ok {
			return nil, fmt.Errorf("contains an unknown weekday %q", value)
		}
		out = append(out, day)
	}
	return out, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// fieldErrors collects request level parse errors into a ValidationError.
type fieldErrors map[string]string

func (f fieldErrors) add(field string, err error) {
	if err != nil {
		f[field] = err.Error()
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &application.ValidationError{FieldErrors: f}
}
