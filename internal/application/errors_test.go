package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/appointment-booking/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"start": "invalid", "capacity": "invalid"}}
	if got := withFields.Error(); got != "validation failed: capacity, start" {
		t.Fatalf("expected sorted field names in message, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestMapBookingRepoError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   error
		want error
	}{
		{name: "slot full", in: persistence.ErrSlotFull, want: ErrSlotFull},
		{name: "duplicate booking", in: fmt.Errorf("insert: %w", persistence.ErrDuplicateBooking), want: ErrDuplicateBooking},
		{name: "missing booking", in: persistence.ErrNotFound, want: ErrBookingNotFound},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := mapBookingRepoError(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if mapBookingRepoError(nil) != nil {
		t.Fatalf("expected nil to map to nil")
	}
}

func TestMapUserRepoError(t *testing.T) {
	t.Parallel()

	if got := mapUserRepoError(persistence.ErrDuplicate); !errors.Is(got, ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", got)
	}
	if got := mapUserRepoError(persistence.ErrNotFound); !errors.Is(got, ErrNotFound) {
		t.Fatalf("expected not found, got %v", got)
	}
	if got := mapUserRepoError(persistence.ErrUsersExist); !errors.Is(got, ErrSetupCompleted) {
		t.Fatalf("expected setup completed, got %v", got)
	}
}

func TestMapSlotRepoError_ConstraintBecomesValidation(t *testing.T) {
	t.Parallel()

	got := mapSlotRepoError(fmt.Errorf("insert slot: %w", persistence.ErrConstraintViolation))
	var vErr *ValidationError
	if !errors.As(got, &vErr) {
		t.Fatalf("expected ValidationError, got %v", got)
	}
	if ErrorKind(got) != "validation" {
		t.Fatalf("expected validation kind, got %q", ErrorKind(got))
	}
}
