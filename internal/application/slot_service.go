package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/appointment-booking/internal/persistence"
	"github.com/example/appointment-booking/internal/recurrence"
)

// DefaultUpcomingDays is the window of the public availability listing.
const DefaultUpcomingDays = 7

// SlotService manages the slot registry and computes availability from live booking counts.
type SlotService struct {
	slots       persistence.SlotRepository
	engine      *recurrence.Engine
	location    *time.Location
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSlotService constructs a slot service. Calendar days are interpreted in loc.
func NewSlotService(slots persistence.SlotRepository, loc *time.Location, idGenerator func() string, now func() time.Time) *SlotService {
	return NewSlotServiceWithLogger(slots, loc, idGenerator, now, nil)
}

// NewSlotServiceWithLogger constructs a slot service with a specified logger.
func NewSlotServiceWithLogger(slots persistence.SlotRepository, loc *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SlotService {
	if loc == nil {
		loc = time.Local
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SlotService{
		slots:       slots,
		engine:      recurrence.NewEngine(loc),
		location:    loc,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *SlotService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SlotService", operation, attrs...)
}

// CreateSlot validates input and persists one slot for administrators.
// Overlapping slots are allowed.
func (s *SlotService) CreateSlot(ctx context.Context, params CreateSlotParams) (slot Slot, err error) {
	if s == nil {
		err = fmt.Errorf("SlotService is nil")
		return
	}
	if s.slots == nil {
		err = fmt.Errorf("slot repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateSlot", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("slot_id", slot.ID).InfoContext(ctx, "slot created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	input := truncateSlotInput(params.Input)
	if vErr := validateSlotInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	record := persistence.Slot{
		ID:        s.idGenerator(),
		Start:     input.Start.In(s.location),
		End:       input.End.In(s.location),
		Capacity:  input.Capacity,
		CreatedBy: params.Principal.UserID,
		CreatedAt: s.now(),
	}
	if err = s.slots.CreateSlots(ctx, record); err != nil {
		err = mapSlotRepoError(err)
		return
	}

	slot = toSlot(record)
	return
}

// CreateRecurringSlots tiles the template over the date range and persists
// every generated slot in one unit of work. It returns the number created.
func (s *SlotService) CreateRecurringSlots(ctx context.Context, params CreateRecurringSlotsParams) (count int, err error) {
	if s == nil {
		err = fmt.Errorf("SlotService is nil")
		return
	}
	if s.slots == nil {
		err = fmt.Errorf("slot repository not configured")
		return
	}

	input := params.Input
	logger := s.loggerWith(ctx, "CreateRecurringSlots",
		"principal_id", params.Principal.UserID,
		"start_date", input.StartDate.Format(time.DateOnly),
		"end_date", input.EndDate.Format(time.DateOnly),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create recurring slots", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", count).InfoContext(ctx, "recurring slots created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	if input.Capacity < 1 {
		vErr.add("capacity", "capacity must be at least 1")
	}
	if input.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be a positive number of minutes")
	}
	if input.StartDate.IsZero() {
		vErr.add("start_date", "start date is required")
	}
	if input.EndDate.IsZero() {
		vErr.add("end_date", "end date is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	windows, tileErr := s.engine.Tile(recurrence.Template{
		StartDate:  input.StartDate,
		EndDate:    input.EndDate,
		DailyStart: input.DailyStart,
		DailyEnd:   input.DailyEnd,
		Duration:   time.Duration(input.DurationMinutes) * time.Minute,
		Weekdays:   input.Weekdays,
	})
	if tileErr != nil {
		err = recurrenceValidationError(tileErr)
		return
	}
	if len(windows) == 0 {
		return
	}

	created := s.now()
	records := make([]persistence.Slot, 0, len(windows))
	for _, window := range windows {
		records = append(records, persistence.Slot{
			ID:        s.idGenerator(),
			Start:     window.Start,
			End:       window.End,
			Capacity:  input.Capacity,
			CreatedBy: params.Principal.UserID,
			CreatedAt: created,
		})
	}
	if err = s.slots.CreateSlots(ctx, records...); err != nil {
		err = mapSlotRepoError(err)
		return
	}

	count = len(records)
	return
}

// ListSlotsForDate returns the slots starting on the calendar day of date,
// ordered by start, with live availability.
func (s *SlotService) ListSlotsForDate(ctx context.Context, date time.Time) ([]SlotAvailability, error) {
	if s == nil || s.slots == nil {
		return nil, fmt.Errorf("slot repository not configured")
	}
	from := s.dayStart(date)
	before := from.AddDate(0, 0, 1)

	occupancy, err := s.slots.ListSlots(ctx, persistence.SlotFilter{StartsFrom: &from, StartsBefore: &before})
	if err != nil {
		return nil, err
	}
	out := make([]SlotAvailability, 0, len(occupancy))
	for _, occ := range occupancy {
		out = append(out, toSlotAvailability(occ))
	}
	return out, nil
}

// ListUpcoming groups slots by day for days consecutive dates starting at from.
// Days without slots are included with an empty list.
func (s *SlotService) ListUpcoming(ctx context.Context, from time.Time, days int) ([]DayAvailability, error) {
	if s == nil || s.slots == nil {
		return nil, fmt.Errorf("slot repository not configured")
	}
	if days <= 0 {
		days = DefaultUpcomingDays
	}
	start := s.dayStart(from)
	end := start.AddDate(0, 0, days)

	occupancy, err := s.slots.ListSlots(ctx, persistence.SlotFilter{StartsFrom: &start, StartsBefore: &end})
	if err != nil {
		return nil, err
	}

	out := make([]DayAvailability, days)
	for i := range out {
		out[i] = DayAvailability{Date: start.AddDate(0, 0, i), Slots: []SlotAvailability{}}
	}
	for _, occ := range occupancy {
		slotDay := s.dayStart(occ.Slot.Start)
		for i := range out {
			if out[i].Date.Equal(slotDay) {
				out[i].Slots = append(out[i].Slots, toSlotAvailability(occ))
				break
			}
		}
	}
	return out, nil
}

// GetSlotAvailability returns one slot with its live availability.
func (s *SlotService) GetSlotAvailability(ctx context.Context, slotID string) (SlotAvailability, error) {
	if s == nil || s.slots == nil {
		return SlotAvailability{}, fmt.Errorf("slot repository not configured")
	}
	slot, err := s.slots.GetSlot(ctx, slotID)
	if err != nil {
		return SlotAvailability{}, mapSlotRepoError(err)
	}
	booked, err := s.slots.CountBooked(ctx, slotID)
	if err != nil {
		return SlotAvailability{}, err
	}
	return toSlotAvailability(persistence.SlotOccupancy{Slot: slot, Booked: booked}), nil
}

// AvailableSeats returns the remaining seats of a slot computed from the ledger.
func (s *SlotService) AvailableSeats(ctx context.Context, slotID string) (int, error) {
	availability, err := s.GetSlotAvailability(ctx, slotID)
	if err != nil {
		return 0, err
	}
	return availability.Available, nil
}

// RemoveSlot deletes a slot and all of its bookings for administrators.
func (s *SlotService) RemoveSlot(ctx context.Context, principal Principal, slotID string) (err error) {
	if s == nil {
		return fmt.Errorf("SlotService is nil")
	}
	if s.slots == nil {
		return fmt.Errorf("slot repository not configured")
	}

	logger := s.loggerWith(ctx, "RemoveSlot", "principal_id", principal.UserID, "slot_id", slotID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "slot removed")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if err = s.slots.DeleteSlot(ctx, slotID); err != nil {
		err = mapSlotRepoError(err)
	}
	return
}

func (s *SlotService) dayStart(t time.Time) time.Time {
	y, m, d := t.In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.location)
}

// truncateSlotInput drops sub-second precision, which storage does not keep,
// so validation sees the window that will be persisted.
func truncateSlotInput(input SlotInput) SlotInput {
	input.Start = input.Start.Truncate(time.Second)
	input.End = input.End.Truncate(time.Second)
	return input
}

func validateSlotInput(input SlotInput) *ValidationError {
	vErr := &ValidationError{}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	} else if !input.End.After(input.Start) {
		vErr.add("end", "end must be after start")
	}
	if input.Capacity < 1 {
		vErr.add("capacity", "capacity must be at least 1")
	}
	return vErr
}

func recurrenceValidationError(err error) error {
	vErr := &ValidationError{}
	switch {
	case errors.Is(err, recurrence.ErrInvalidRange):
		vErr.add("end_date", "end date must not be before start date")
	case errors.Is(err, recurrence.ErrInvalidWindow):
		vErr.add("daily_end", "daily end must be after daily start")
	case errors.Is(err, recurrence.ErrInvalidDuration):
		vErr.add("duration_minutes", "duration must be a positive number of minutes")
	case errors.Is(err, recurrence.ErrTooManyWindows):
		vErr.add("end_date", "date range generates too many slots")
	default:
		return err
	}
	return vErr
}
