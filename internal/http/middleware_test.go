package http

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/appointment-booking/internal/application"
)

type stubValidator struct {
	tokens map[string]application.Principal
	err    error
}

func (s stubValidator) ValidateSession(_ context.Context, token string) (application.Principal, error) {
	if s.err != nil {
		return application.Principal{}, s.err
	}
	principal, ok := s.tokens[token]
	if !ok {
		return application.Principal{}, application.ErrUnauthenticated
	}
	return principal, nil
}

type countingChecker struct {
	required bool
	calls    int
}

func (c *countingChecker) RequiresSetup(context.Context) (bool, error) {
	c.calls++
	return c.required, nil
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	validator := stubValidator{tokens: map[string]application.Principal{
		"good": {UserID: "user-1", IsAdmin: true},
	}}
	var seen application.Principal
	handler := RequireSession(validator, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name           string
		cookieToken    *http.Cookie
		headerToken    string
		expectedStatus int
		expectedCode   string
	}{
		{name: "missing credentials", expectedStatus: http.StatusUnauthorized, expectedCode: "AUTH_REQUIRED"},
		{name: "non bearer header", headerToken: "Basic good", expectedStatus: http.StatusUnauthorized, expectedCode: "AUTH_REQUIRED"},
		{name: "unknown bearer token", headerToken: "Bearer revoked", expectedStatus: http.StatusUnauthorized, expectedCode: "AUTH_SESSION_EXPIRED"},
		{name: "valid bearer token", headerToken: "Bearer good", expectedStatus: http.StatusNoContent},
		{name: "valid cookie", cookieToken: &http.Cookie{Name: "session_token", Value: "good"}, expectedStatus: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = application.Principal{}
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.cookieToken != nil {
				req.AddCookie(tc.cookieToken)
			}
			if tc.headerToken != "" {
				req.Header.Set("Authorization", tc.headerToken)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tc.expectedStatus, rec.Code)
			if tc.expectedCode != "" {
				assert.Equal(t, tc.expectedCode, decodeError(t, rec).ErrorCode)
				return
			}
			assert.Equal(t, "user-1", seen.UserID)
			assert.True(t, seen.IsAdmin)
		})
	}

	t.Run("validator failures surface as server errors", func(t *testing.T) {
		broken := RequireSession(stubValidator{err: errors.New("database down")}, discardLogger())(http.NotFoundHandler())
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		broken.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRequireSetup(t *testing.T) {
	t.Parallel()

	checker := &countingChecker{required: true}
	handler := RequireSetup(checker, discardLogger(), "/setup")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	serve := func(path string) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusConflict, serve("/slots"))
	assert.Equal(t, http.StatusOK, serve("/setup"))
	assert.Equal(t, 1, checker.calls)

	checker.required = false
	assert.Equal(t, http.StatusOK, serve("/slots"))
	assert.Equal(t, http.StatusOK, serve("/slots"))
	assert.Equal(t, 2, checker.calls, "completed setup is remembered")
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context())
		require.NotNil(t, logger)
		logger.InfoContext(r.Context(), "inside handler")
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slots", nil))

	out := buf.String()
	assert.Contains(t, out, "inside handler")
	assert.Contains(t, out, "request_id=1")
	assert.Contains(t, out, "path=/slots")
	assert.Contains(t, out, "request completed")
}

func TestNewRouter_RecoversPanicsAndAppliesCORS(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	var access bytes.Buffer
	handler := NewRouter(RouterConfig{
		Sessions:       stubValidator{err: errors.New("boom")},
		Setup:          panicChecker{},
		AllowedOrigins: []string{"https://app.example.com"},
		AccessLog:      &access,
		Logger:         logger,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "panic recovered")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, access.String(), "GET /healthz")
}

type panicChecker struct{}

func (panicChecker) RequiresSetup(context.Context) (bool, error) {
	panic("setup check exploded")
}

func TestHandlerLoggerTagsTheCaller(t *testing.T) {
	var buf bytes.Buffer
	requestLogger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := ContextWithLogger(context.Background(), requestLogger)
	ctx = ContextWithPrincipal(ctx, application.Principal{UserID: "user-7", IsAdmin: true})
	handlerLogger(ctx, nil, "BookingHandler", "Cancel", "booking_id", "b-1").Info("done")

	line := buf.String()
	for _, want := range []string{"handler=BookingHandler", "operation=Cancel", "principal_id=user-7", "principal_admin=true", "booking_id=b-1"} {
		assert.Contains(t, line, want)
	}

	buf.Reset()
	handlerLogger(context.Background(), requestLogger, "SlotHandler", "ListForDate").Info("anonymous")
	assert.NotContains(t, buf.String(), "principal_id")
}
