package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/appointment-booking/internal/application"
)

type slotService interface {
	CreateSlot(ctx context.Context, params application.CreateSlotParams) (application.Slot, error)
	CreateRecurringSlots(ctx context.Context, params application.CreateRecurringSlotsParams) (int, error)
	ListSlotsForDate(ctx context.Context, date time.Time) ([]application.SlotAvailability, error)
	ListUpcoming(ctx context.Context, from time.Time, days int) ([]application.DayAvailability, error)
	GetSlotAvailability(ctx context.Context, slotID string) (application.SlotAvailability, error)
	RemoveSlot(ctx context.Context, principal application.Principal, slotID string) error
}

// SlotHandler serves slot administration and availability endpoints.
type SlotHandler struct {
	service      slotService
	location     *time.Location
	upcomingDays int
	now          func() time.Time
	responder    responder
	logger       *slog.Logger
}

func NewSlotHandler(service slotService, loc *time.Location, upcomingDays int, now func() time.Time, logger *slog.Logger) *SlotHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.Local
	}
	if upcomingDays <= 0 {
		upcomingDays = application.DefaultUpcomingDays
	}
	if now == nil {
		now = time.Now
	}
	return &SlotHandler{
		service:      service,
		location:     loc,
		upcomingDays: upcomingDays,
		now:          now,
		responder:    newResponder(base),
		logger:       base,
	}
}

func (h *SlotHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SlotHandler", operation, attrs...)
}

func (h *SlotHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode slot request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	problems := fieldErrors{}
	start, err := parseTimestamp(req.Start, h.location)
	problems.add("start", err)
	end, err := parseTimestamp(req.End, h.location)
	problems.add("end", err)
	if err := problems.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	slot, err := h.service.CreateSlot(r.Context(), application.CreateSlotParams{
		Principal: principal,
		Input:     application.SlotInput{Start: start, End: end, Capacity: req.Capacity},
	})
	if err != nil {
		h.log(r.Context(), "Create").ErrorContext(r.Context(), "slot creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSlotDTO(application.SlotAvailability{
		Slot:      slot,
		Available: slot.Capacity,
	}))
}

func (h *SlotHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req recurringSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "CreateRecurring", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode recurring slot request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	problems := fieldErrors{}
	startDate, err := parseDate(req.StartDate, h.location)
	problems.add("start_date", err)
	endDate, err := parseDate(req.EndDate, h.location)
	problems.add("end_date", err)
	dailyStart, err := parseClock(req.DailyStart)
	problems.add("daily_start", err)
	dailyEnd, err := parseClock(req.DailyEnd)
	problems.add("daily_end", err)
	weekdays, err := parseWeekdays(req.Weekdays)
	problems.add("weekdays", err)
	if err := problems.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	count, err := h.service.CreateRecurringSlots(r.Context(), application.CreateRecurringSlotsParams{
		Principal: principal,
		Input: application.RecurringSlotInput{
			StartDate:       startDate,
			EndDate:         endDate,
			DailyStart:      dailyStart,
			DailyEnd:        dailyEnd,
			DurationMinutes: req.DurationMinutes,
			Capacity:        req.Capacity,
			Weekdays:        weekdays,
		},
	})
	if err != nil {
		h.log(r.Context(), "CreateRecurring").ErrorContext(r.Context(), "recurring slot creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, recurringSlotResponse{Created: count})
}

func (h *SlotHandler) ListForDate(w http.ResponseWriter, r *http.Request) {
	date := h.now().In(h.location)
	if value := r.URL.Query().Get("date"); value != "" {
		parsed, err := parseDate(value, h.location)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, fieldErrors{"date": err.Error()}.err())
			return
		}
		date = parsed
	}

	slots, err := h.service.ListSlotsForDate(r.Context(), date)
	if err != nil {
		h.log(r.Context(), "ListForDate").ErrorContext(r.Context(), "failed to list slots", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]slotDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, toSlotDTO(slot))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *SlotHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	problems := fieldErrors{}
	from := h.now().In(h.location)
	if value := query.Get("from"); value != "" {
		parsed, err := parseDate(value, h.location)
		problems.add("from", err)
		from = parsed
	}
	days := h.upcomingDays
	if value := strings.TrimSpace(query.Get("days")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 || parsed > 366 {
			problems["days"] = "must be between 1 and 366"
		}
		days = parsed
	}
	if err := problems.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	upcoming, err := h.service.ListUpcoming(r.Context(), from, days)
	if err != nil {
		h.log(r.Context(), "Upcoming").ErrorContext(r.Context(), "failed to list availability", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]dayDTO, 0, len(upcoming))
	for _, day := range upcoming {
		slots := make([]slotDTO, 0, len(day.Slots))
		for _, slot := range day.Slots {
			slots = append(slots, toSlotDTO(slot))
		}
		out = append(out, dayDTO{Date: day.Date.Format(dateLayout), Slots: slots})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *SlotHandler) Availability(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSlotID)
		return
	}
	slot, err := h.service.GetSlotAvailability(r.Context(), id)
	if err != nil {
		h.log(r.Context(), "Availability", "slot_id", id).ErrorContext(r.Context(), "failed to read availability", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSlotDTO(slot))
}

func (h *SlotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSlotID)
		return
	}
	if err := h.service.RemoveSlot(r.Context(), principal, id); err != nil {
		h.log(r.Context(), "Delete", "slot_id", id).ErrorContext(r.Context(), "slot removal failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type slotRequest struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Capacity int    `json:"capacity"`
}

type recurringSlotRequest struct {
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	DailyStart      string   `json:"daily_start"`
	DailyEnd        string   `json:"daily_end"`
	DurationMinutes int      `json:"duration_minutes"`
	Capacity        int      `json:"capacity"`
	Weekdays        []string `json:"weekdays,omitempty"`
}

type recurringSlotResponse struct {
	Created int `json:"created"`
}

type slotDTO struct {
	ID        string `json:"id"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Capacity  int    `json:"capacity"`
	Booked    int    `json:"booked"`
	Available int    `json:"available"`
	CreatedBy string `json:"created_by"`
}

type dayDTO struct {
	Date  string    `json:"date"`
	Slots []slotDTO `json:"slots"`
}

func toSlotDTO(slot application.SlotAvailability) slotDTO {
	return slotDTO{
		ID:        slot.Slot.ID,
		Start:     formatTimestamp(slot.Slot.Start),
		End:       formatTimestamp(slot.Slot.End),
		Capacity:  slot.Slot.Capacity,
		Booked:    slot.Booked,
		Available: slot.Available,
		CreatedBy: slot.Slot.CreatedBy,
	}
}
