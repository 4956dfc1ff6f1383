package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/appointment-booking/internal/application"
)

var (
	errBadRequestBody      = errors.New("invalid request body")
	errInvalidSlotID       = errors.New("invalid slot id")
	errInvalidBookingID    = errors.New("invalid booking id")
	errMissingSessionToken = errors.New("a session token is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    vErr.FieldErrors,
		})
		return
	}

	status, code, message := classifyError(err)
	if status == http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, application.ErrInvalidCredentials):
		return http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", "email or password is incorrect"
	case errors.Is(err, application.ErrUnauthenticated):
		return http.StatusUnauthorized, "AUTH_REQUIRED", "please log in again"
	case errors.Is(err, application.ErrUnauthorized):
		return http.StatusForbidden, "AUTH_FORBIDDEN", "you are not allowed to perform this operation"
	case errors.Is(err, application.ErrSlotNotFound):
		return http.StatusNotFound, "SLOT_NOT_FOUND", "the slot does not exist"
	case errors.Is(err, application.ErrBookingNotFound):
		return http.StatusNotFound, "BOOKING_NOT_FOUND", "the booking does not exist"
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", statusMessage(http.StatusNotFound)
	case errors.Is(err, application.ErrSlotFull):
		return http.StatusConflict, "SLOT_FULL", "the slot is fully booked"
	case errors.Is(err, application.ErrDuplicateBooking):
		return http.StatusConflict, "DUPLICATE_BOOKING", "you already hold a booking for this slot"
	case errors.Is(err, application.ErrDuplicateEmail):
		return http.StatusConflict, "DUPLICATE_EMAIL", "an account with this email already exists"
	case errors.Is(err, application.ErrSetupRequired):
		return http.StatusConflict, "SETUP_REQUIRED", "create the administrator account first"
	case errors.Is(err, application.ErrSetupCompleted):
		return http.StatusConflict, "SETUP_COMPLETED", "setup has already been completed"
	default:
		return http.StatusInternalServerError, "INTERNAL", statusMessage(http.StatusInternalServerError)
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is malformed"
	case http.StatusUnauthorized:
		return "authentication is required"
	case http.StatusForbidden:
		return "you are not allowed to perform this operation"
	case http.StatusNotFound:
		return "the requested resource was not found"
	case http.StatusConflict:
		return "the request conflicts with the current state"
	case http.StatusUnprocessableEntity:
		return "the input is invalid"
	default:
		return "an internal error occurred"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
