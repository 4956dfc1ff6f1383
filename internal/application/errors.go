package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/appointment-booking/internal/persistence"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrUnauthenticated is returned when an operation requires a signed-in principal.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrDuplicateEmail is returned when an account already uses the email address.
	ErrDuplicateEmail = errors.New("application: duplicate email")
	// ErrInvalidCredentials is returned for every failed login, whatever the cause.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrSlotNotFound is returned when booking or inspecting a slot that does not exist.
	ErrSlotNotFound = errors.New("application: slot not found")
	// ErrSlotFull is returned when the slot has no remaining seats.
	ErrSlotFull = errors.New("application: slot full")
	// ErrDuplicateBooking is returned when the user already holds an active booking for the slot.
	ErrDuplicateBooking = errors.New("application: duplicate booking")
	// ErrBookingNotFound is returned when canceling a booking that does not exist.
	ErrBookingNotFound = errors.New("application: booking not found")
	// ErrSetupRequired is returned while no account exists yet.
	ErrSetupRequired = errors.New("application: setup required")
	// ErrSetupCompleted is returned when bootstrapping after the first account exists.
	ErrSetupCompleted = errors.New("application: setup already completed")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func mapUserRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrDuplicateEmail
	case errors.Is(err, persistence.ErrUsersExist):
		return ErrSetupCompleted
	default:
		return err
	}
}

func mapSlotRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrSlotNotFound
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		// creator account no longer exists
		return ErrUnauthenticated
	case errors.Is(err, persistence.ErrConstraintViolation):
		return &ValidationError{FieldErrors: map[string]string{"slot": "slot window or capacity rejected by storage"}}
	default:
		return err
	}
}

func mapBookingRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrSlotFull):
		return ErrSlotFull
	case errors.Is(err, persistence.ErrDuplicateBooking):
		return ErrDuplicateBooking
	case errors.Is(err, persistence.ErrNotFound):
		return ErrBookingNotFound
	default:
		return err
	}
}
