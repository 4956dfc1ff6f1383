package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// RouterConfig wires handlers and middleware dependencies into the router.
type RouterConfig struct {
	Auth     *AuthHandler
	Slots    *SlotHandler
	Bookings *BookingHandler
	Settings *SettingsHandler

	Sessions SessionValidator
	Setup    SetupChecker

	// AccessLog receives combined format access lines when set.
	AccessLog io.Writer
	// AllowedOrigins enables CORS for the listed origins when non-empty.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the HTTP surface of the booking service.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	router := mux.NewRouter()

	router.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	if cfg.Auth != nil {
		router.HandleFunc("/setup", cfg.Auth.SetupStatus).Methods(http.MethodGet)
		router.HandleFunc("/setup", cfg.Auth.Setup).Methods(http.MethodPost)
		router.HandleFunc("/register", cfg.Auth.Register).Methods(http.MethodPost)
		router.HandleFunc("/login", cfg.Auth.Login).Methods(http.MethodPost)
		router.HandleFunc("/logout", cfg.Auth.Logout).Methods(http.MethodPost)
	}
	if cfg.Slots != nil {
		router.HandleFunc("/slots", cfg.Slots.ListForDate).Methods(http.MethodGet)
		router.HandleFunc("/availability", cfg.Slots.Upcoming).Methods(http.MethodGet)
	}

	protected := router.NewRoute().Subrouter()
	if cfg.Sessions != nil {
		protected.Use(RequireSession(cfg.Sessions, logger))
	}

	if cfg.Slots != nil {
		protected.HandleFunc("/slots", cfg.Slots.Create).Methods(http.MethodPost)
		protected.HandleFunc("/slots/recurring", cfg.Slots.CreateRecurring).Methods(http.MethodPost)
		protected.HandleFunc("/slots/{id}", cfg.Slots.Delete).Methods(http.MethodDelete)
		protected.HandleFunc("/slots/{id}/availability", cfg.Slots.Availability).Methods(http.MethodGet)
	}
	if cfg.Bookings != nil {
		protected.HandleFunc("/slots/{id}/bookings", cfg.Bookings.Create).Methods(http.MethodPost)
		protected.HandleFunc("/bookings", cfg.Bookings.List).Methods(http.MethodGet)
		protected.HandleFunc("/bookings/export.csv", cfg.Bookings.ExportCSV).Methods(http.MethodGet)
		protected.HandleFunc("/bookings/export.ics", cfg.Bookings.ExportICS).Methods(http.MethodGet)
		protected.HandleFunc("/bookings/{id}/cancel", cfg.Bookings.Cancel).Methods(http.MethodPost)
	}
	if cfg.Settings != nil {
		protected.HandleFunc("/settings", cfg.Settings.List).Methods(http.MethodGet)
		protected.HandleFunc("/settings", cfg.Settings.Update).Methods(http.MethodPut)
	}

	var handler http.Handler = router
	if cfg.Setup != nil {
		handler = RequireSetup(cfg.Setup, logger, "/healthz", "/setup")(handler)
	}
	handler = RequestLogger(logger)(handler)
	if len(cfg.AllowedOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
			handlers.AllowCredentials(),
		)(handler)
	}
	if cfg.AccessLog != nil {
		handler = handlers.CombinedLoggingHandler(cfg.AccessLog, handler)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(false),
	)(handler)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"ok"}`+"\n")
}
