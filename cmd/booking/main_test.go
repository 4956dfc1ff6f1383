package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/appointment-booking/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DatabaseDriver: "sqlite",
		DatabaseDSN:    "file:" + filepath.Join(t.TempDir(), "booking.db"),
		SessionSecret:  "test-secret",
		SessionTTL:     time.Hour,
		Timezone:       "UTC",
		Location:       time.UTC,
		UpcomingDays:   7,
	}
}

func TestOpenStore_MigratesSQLite(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := openStore(context.Background(), testConfig(t), logger)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer store.Close()

	count, err := store.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("CountUsers failed after migration: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected an empty database, got %d users", count)
	}
}

func TestOpenStore_RejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseDriver = "oracle"
	if _, err := openStore(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}

func TestNewApp_ServesSetupAndBookingFlow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t)
	store, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer store.Close()

	var ids int
	idGenerator := func() string {
		ids++
		return fmt.Sprintf("id-%03d", ids)
	}
	now := func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }
	var access bytes.Buffer
	srv := newApp(cfg, store, idGenerator, now, &access, logger)
	if srv.digest != nil {
		t.Fatal("digest must stay disabled without a schedule")
	}

	call := func(method, path, token string, body any) *httptest.ResponseRecorder {
		t.Helper()
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			reader = bytes.NewReader(payload)
		}
		req := httptest.NewRequest(method, path, reader)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := call(http.MethodGet, "/slots", "", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected setup gate, got %d", rec.Code)
	}
	account := map[string]string{"name": "Root", "email": "root@example.com", "password": "correct-horse"}
	if rec := call(http.MethodPost, "/setup", "", account); rec.Code != http.StatusCreated {
		t.Fatalf("setup failed: %d %s", rec.Code, rec.Body.String())
	}

	rec := call(http.MethodPost, "/login", "", map[string]string{"email": "root@example.com", "password": "correct-horse"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode login failed: %v", err)
	}

	rec = call(http.MethodPost, "/slots", session.Token, map[string]any{
		"start": "2024-03-04T09:00", "end": "2024-03-04T09:30", "capacity": 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create slot failed: %d %s", rec.Code, rec.Body.String())
	}
	var slot struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &slot); err != nil {
		t.Fatalf("decode slot failed: %v", err)
	}

	rec = call(http.MethodPost, "/slots/"+slot.ID+"/bookings", session.Token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("booking failed: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"warning"`) {
		t.Fatalf("unconfigured SMTP must not produce a warning: %s", rec.Body.String())
	}

	rec = call(http.MethodGet, "/slots/"+slot.ID+"/availability", session.Token, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"available":0`) {
		t.Fatalf("unexpected availability: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(access.String(), "POST /login") {
		t.Fatalf("expected access log lines, got %q", access.String())
	}
}

func TestNewApp_EnablesDigestWhenScheduled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t)
	cfg.DigestSchedule = "0 18 * * *"
	store, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer store.Close()

	srv := newApp(cfg, store, func() string { return "id" }, time.Now, nil, logger)
	if srv.digest == nil {
		t.Fatal("expected a digest job")
	}
	if err := srv.digest.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := srv.digest.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
