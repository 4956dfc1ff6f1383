// Package recurrence expands a recurring slot template into concrete slot windows.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxWindows caps a single generation sweep.
const DefaultMaxWindows = 10000

var (
	// ErrInvalidRange indicates the end date precedes the start date.
	ErrInvalidRange = errors.New("recurrence: end date must not be before start date")
	// ErrInvalidWindow indicates the daily window is empty or outside one day.
	ErrInvalidWindow = errors.New("recurrence: daily end must be after daily start within one day")
	// ErrInvalidDuration indicates the slot duration is not a positive whole number of minutes.
	ErrInvalidDuration = errors.New("recurrence: slot duration must be a positive number of minutes")
	// ErrTooManyWindows indicates the sweep would exceed the configured cap.
	ErrTooManyWindows = errors.New("recurrence: too many slots requested")
)

// Template describes a daily tiling over a range of calendar days.
type Template struct {
	// StartDate and EndDate are inclusive calendar days; their clock time is ignored.
	StartDate time.Time
	EndDate   time.Time
	// DailyStart and DailyEnd are wall-clock offsets from midnight.
	DailyStart time.Duration
	DailyEnd   time.Duration
	Duration   time.Duration
	// Weekdays restricts the days used. Empty means every day.
	Weekdays []time.Weekday
}

// Window is one generated slot interval, half-open [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Engine tiles templates into windows in a fixed location.
type Engine struct {
	location   *time.Location
	maxWindows int
}

// NewEngine constructs an Engine that interprets dates in loc. If loc is nil, time.Local is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{location: loc, maxWindows: DefaultMaxWindows}
}

// WithMaxWindows overrides the per-sweep cap. Non-positive values keep the default.
func (e *Engine) WithMaxWindows(n int) *Engine {
	if n > 0 {
		e.maxWindows = n
	}
	return e
}

// Days returns the calendar days in the template's range whose weekday is allowed.
func (e *Engine) Days(tpl Template) ([]time.Time, error) {
	first := e.midnight(tpl.StartDate)
	last := e.midnight(tpl.EndDate)
	if last.Before(first) {
		return nil, ErrInvalidRange
	}

	opt := rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: first,
		Until:   last,
	}
	for _, day := range uniqueWeekdays(tpl.Weekdays) {
		opt.Byweekday = append(opt.Byweekday, toRRuleWeekday(day))
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurrence: build rule: %w", err)
	}

	days := rule.All()
	for i := range days {
		days[i] = e.midnight(days[i])
	}
	return days, nil
}

// Tile generates consecutive windows of tpl.Duration on every allowed day.
// Window k on a day spans [DailyStart + k*Duration, DailyStart + (k+1)*Duration)
// and is kept only if it ends no later than DailyEnd.
func (e *Engine) Tile(tpl Template) ([]Window, error) {
	if tpl.Duration <= 0 || tpl.Duration%time.Minute != 0 {
		return nil, ErrInvalidDuration
	}
	if tpl.DailyStart < 0 || tpl.DailyEnd > 24*time.Hour || tpl.DailyEnd <= tpl.DailyStart {
		return nil, ErrInvalidWindow
	}

	days, err := e.Days(tpl)
	if err != nil {
		return nil, err
	}

	startMinute := int(tpl.DailyStart / time.Minute)
	endMinute := int(tpl.DailyEnd / time.Minute)
	step := int(tpl.Duration / time.Minute)
	perDay := (endMinute - startMinute) / step
	if perDay == 0 {
		return []Window{}, nil
	}
	if len(days)*perDay > e.maxWindows {
		return nil, fmt.Errorf("%w: %d slots exceeds limit of %d", ErrTooManyWindows, len(days)*perDay, e.maxWindows)
	}

	windows := make([]Window, 0, len(days)*perDay)
	for _, day := range days {
		y, m, d := day.Date()
		for k := 0; k < perDay; k++ {
			from := startMinute + k*step
			// time.Date normalizes minute overflow into hours on the same wall clock day
			windows = append(windows, Window{
				Start: time.Date(y, m, d, 0, from, 0, 0, e.location),
				End:   time.Date(y, m, d, 0, from+step, 0, 0, e.location),
			})
		}
	}
	return windows, nil
}

// midnight keeps the calendar date of t as written and anchors it in the engine location.
func (e *Engine) midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.location)
}

func uniqueWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, day := range days {
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	return out
}

func toRRuleWeekday(day time.Weekday) rrule.Weekday {
	switch day {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
