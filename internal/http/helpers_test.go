package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/appointment-booking/internal/application"
	"github.com/example/appointment-booking/internal/notify"
	"github.com/example/appointment-booking/internal/persistence/memory"
)

var testLocation = time.FixedZone("test", 2*60*60)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs(prefix string) func() string {
	var counter atomic.Uint64
	return func() string {
		return fmt.Sprintf("%s-%03d", prefix, counter.Add(1))
	}
}

type silentNotifier struct{}

func (silentNotifier) SendConfirmation(context.Context, notify.Message) error {
	return notify.ErrNotConfigured
}

type testServer struct {
	handler  http.Handler
	store    *memory.Storage
	identity *application.IdentityService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.Open()
	t.Cleanup(func() { _ = store.Close() })

	now := func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, testLocation) }
	logger := discardLogger()

	identity := application.NewIdentityServiceWithLogger(store, sequentialIDs("user"), now, logger).
		WithPasswordParams(application.PBKDF2Params{Iterations: 1000, SaltLength: 16, KeyLength: 32})
	auth := application.NewAuthServiceWithLogger(identity, []byte("test-secret"), now, time.Hour, logger)
	slots := application.NewSlotServiceWithLogger(store, testLocation, sequentialIDs("slot"), now, logger)
	bookings := application.NewBookingServiceWithLogger(store, store, store, silentNotifier{}, sequentialIDs("booking"), now, logger)
	settings := application.NewSettingsServiceWithLogger(store, logger)

	handler := NewRouter(RouterConfig{
		Auth:     NewAuthHandler(auth, identity, logger),
		Slots:    NewSlotHandler(slots, testLocation, 7, now, logger),
		Bookings: NewBookingHandler(bookings, testLocation, now, logger),
		Settings: NewSettingsHandler(settings, logger),
		Sessions: auth,
		Setup:    identity,
		Logger:   logger,
	})
	return &testServer{handler: handler, store: store, identity: identity}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// bootstrap creates the administrator through /setup and returns its token.
func (s *testServer) bootstrap(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/setup", "", map[string]string{
		"name": "Root", "email": "root@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return s.login(t, "root@example.com")
}

func (s *testServer) register(t *testing.T, name string) string {
	t.Helper()
	email := name + "@example.com"
	rec := s.do(t, http.MethodPost, "/register", "", map[string]string{
		"name": name, "email": email, "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return s.login(t, email)
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/login", "", map[string]string{"email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func (s *testServer) createSlot(t *testing.T, token, start, end string, capacity int) slotDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/slots", token, map[string]any{"start": start, "end": end, "capacity": capacity})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var slot slotDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slot))
	return slot
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}
