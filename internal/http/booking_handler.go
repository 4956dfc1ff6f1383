package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/appointment-booking/internal/application"
	"github.com/example/appointment-booking/internal/export"
)

type bookingService interface {
	BookSlot(ctx context.Context, params application.BookSlotParams) (application.BookingResult, error)
	CancelBooking(ctx context.Context, principal application.Principal, bookingID string) error
	ListBookings(ctx context.Context, params application.ListBookingsParams) ([]application.Booking, error)
}

// BookingHandler serves booking, cancellation, listing and export endpoints.
type BookingHandler struct {
	service   bookingService
	location  *time.Location
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, loc *time.Location, now func() time.Time, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &BookingHandler{service: service, location: loc, now: now, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	slotID := strings.TrimSpace(mux.Vars(r)["id"])
	if slotID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSlotID)
		return
	}

	var req bookingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode booking request", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
	}

	logger := h.log(r.Context(), "Create", "slot_id", slotID)
	result, err := h.service.BookSlot(r.Context(), application.BookSlotParams{
		Principal: principal,
		SlotID:    slotID,
		Contact: application.Contact{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
			Notes: req.Notes,
		},
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "booking failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking created", "booking_id", result.Booking.ID, "warning", result.Warning != "")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, bookingResponse{
		Booking: toBookingDTO(result.Booking),
		Warning: result.Warning,
	})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return
	}
	if err := h.service.CancelBooking(r.Context(), principal, id); err != nil {
		h.log(r.Context(), "Cancel", "booking_id", id).ErrorContext(r.Context(), "cancellation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	bookings, ok := h.list(w, r, "List")
	if !ok {
		return
	}
	out := make([]bookingDTO, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingDTO(b))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *BookingHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	bookings, ok := h.list(w, r, "ExportCSV")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, bookings); err != nil {
		h.log(r.Context(), "ExportCSV").ErrorContext(r.Context(), "failed to render csv", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", "bookings.csv", buf.Bytes())
}

func (h *BookingHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	bookings, ok := h.list(w, r, "ExportICS")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteICS(&buf, "Bookings", bookings, h.now()); err != nil {
		h.log(r.Context(), "ExportICS").ErrorContext(r.Context(), "failed to render calendar", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	writeAttachment(w, "text/calendar; charset=utf-8", "bookings.ics", buf.Bytes())
}

// list decodes the shared listing query and writes the error response itself.
func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request, operation string) ([]application.Booking, bool) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	params := application.ListBookingsParams{
		Principal: principal,
		Scope:     application.BookingScope(strings.TrimSpace(query.Get("scope"))),
		Status:    application.BookingStatus(strings.TrimSpace(query.Get("status"))),
	}
	problems := fieldErrors{}
	if value := query.Get("from"); value != "" {
		from, err := parseDate(value, h.location)
		problems.add("from", err)
		params.From = &from
	}
	if value := query.Get("until"); value != "" {
		until, err := parseDate(value, h.location)
		problems.add("until", err)
		params.Until = &until
	}
	if err := problems.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return nil, false
	}

	bookings, err := h.service.ListBookings(r.Context(), params)
	if err != nil {
		h.log(r.Context(), operation, "scope", string(params.Scope)).ErrorContext(r.Context(), "failed to list bookings", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return nil, false
	}
	return bookings, true
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type bookingRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
	Warning string     `json:"warning,omitempty"`
}

type bookingDTO struct {
	ID        string `json:"id"`
	SlotID    string `json:"slot_id"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Status    string `json:"status"`
	SlotStart string `json:"slot_start"`
	SlotEnd   string `json:"slot_end"`
	CreatedAt string `json:"created_at"`
}

func toBookingDTO(b application.Booking) bookingDTO {
	return bookingDTO{
		ID:        b.ID,
		SlotID:    b.SlotID,
		UserID:    b.UserID,
		Name:      b.Contact.Name,
		Email:     b.Contact.Email,
		Phone:     b.Contact.Phone,
		Notes:     b.Contact.Notes,
		Status:    string(b.Status),
		SlotStart: formatTimestamp(b.SlotStart),
		SlotEnd:   formatTimestamp(b.SlotEnd),
		CreatedAt: formatTimestamp(b.CreatedAt),
	}
}
