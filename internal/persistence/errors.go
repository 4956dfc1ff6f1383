package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a CHECK or NOT NULL constraint rejects a write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a write references a missing parent row.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrSlotFull is returned by CreateBooking when the slot has no remaining seats.
	ErrSlotFull = errors.New("persistence: slot full")
	// ErrUsersExist is returned by CreateFirstUser once any account exists.
	ErrUsersExist = errors.New("persistence: users already exist")
	// ErrDuplicateBooking is returned by CreateBooking when the user already holds an active booking for the slot.
	ErrDuplicateBooking = errors.New("persistence: duplicate booking")
)
