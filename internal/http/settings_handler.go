package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/appointment-booking/internal/application"
)

type settingsService interface {
	ListSettings(ctx context.Context, principal application.Principal) (map[string]string, error)
	UpdateSettings(ctx context.Context, principal application.Principal, values map[string]string) error
}

// SettingsHandler exposes the SMTP settings to administrators.
type SettingsHandler struct {
	service   settingsService
	responder responder
	logger    *slog.Logger
}

func NewSettingsHandler(service settingsService, logger *slog.Logger) *SettingsHandler {
	base := defaultLogger(logger)
	return &SettingsHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SettingsHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SettingsHandler", operation, attrs...)
}

func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	values, err := h.service.ListSettings(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "failed to list settings", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, values)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode settings request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if err := h.service.UpdateSettings(r.Context(), principal, values); err != nil {
		h.log(r.Context(), "Update").ErrorContext(r.Context(), "failed to update settings", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.List(w, r)
}
