package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/appointment-booking/internal/persistence/sqlstore"
)

// SQLiteHarness provides a migrated SQL store backed by a temporary SQLite
// file for integration tests.
type SQLiteHarness struct {
	Store *sqlstore.Store
	Path  string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a temporary database whose timestamps
// are read in loc. Cleanup is registered with tb.
func NewSQLiteHarness(tb testing.TB, loc *time.Location) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "booking.db")
	ctx := context.Background()

	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:   "sqlite",
		DSN:      "file:" + path,
		Location: loc,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		Path:  path,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
