package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestContextWithLogger(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatal("expected the stored logger")
	}
	if FromContext(context.Background()) != nil {
		t.Fatal("expected nil without a stored logger")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json output honours the level", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger, err := New(&buf, "warn", "")
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		logger.Info("dropped")
		logger.Warn("kept", "slot_id", "slot-1")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected one line, got %q", buf.String())
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
			t.Fatalf("expected json output: %v", err)
		}
		if entry["msg"] != "kept" || entry["slot_id"] != "slot-1" {
			t.Fatalf("unexpected entry %+v", entry)
		}
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger, err := New(&buf, "debug", "TEXT")
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		logger.Debug("hello")
		if !strings.Contains(buf.String(), "msg=hello") {
			t.Fatalf("expected text output, got %q", buf.String())
		}
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		t.Parallel()
		if _, err := New(&bytes.Buffer{}, "verbose", "json"); err == nil {
			t.Fatal("expected level error")
		}
		if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
			t.Fatal("expected format error")
		}
	})
}
