package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/example/appointment-booking/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLogger_PrefersContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctxLogger := slog.New(slog.NewTextHandler(&buf, nil))
	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := logging.ContextWithLogger(context.Background(), ctxLogger)

	serviceLogger(ctx, base, "BookingService", "BookSlot", "slot_id", "s-1").Info("booked")

	out := buf.String()
	for _, want := range []string{"service=BookingService", "operation=BookSlot", "slot_id=s-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output %q", want, out)
		}
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: ErrSlotFull, want: "slot_full"},
		{err: fmt.Errorf("wrap: %w", ErrDuplicateBooking), want: "duplicate_booking"},
		{err: ErrSlotNotFound, want: "slot_not_found"},
		{err: ErrInvalidCredentials, want: "invalid_credentials"},
		{err: ErrSetupRequired, want: "setup_required"},
		{err: &ValidationError{FieldErrors: map[string]string{"email": "required"}}, want: "validation"},
		{err: fmt.Errorf("disk on fire"), want: "unexpected"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
