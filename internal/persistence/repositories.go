package persistence

import (
	"context"
	"time"
)

// UserRepository stores accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	// CreateFirstUser inserts user only while no account exists (ErrUsersExist).
	// The emptiness check and the insert are one atomic step.
	CreateFirstUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CountUsers(ctx context.Context) (int, error)
}

// SettingRepository stores key/value settings with upsert semantics.
type SettingRepository interface {
	UpsertSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)
	ListSettings(ctx context.Context) ([]Setting, error)
}

// SlotFilter narrows slot listings. Start bounds form the half-open range [StartsFrom, StartsBefore).
type SlotFilter struct {
	StartsFrom   *time.Time
	StartsBefore *time.Time
	CreatedBy    string
}

// SlotRepository stores slots. Booked counts are derived from bookings on every read.
type SlotRepository interface {
	// CreateSlots inserts every slot or none of them.
	CreateSlots(ctx context.Context, slots ...Slot) error
	GetSlot(ctx context.Context, id string) (Slot, error)
	ListSlots(ctx context.Context, filter SlotFilter) ([]SlotOccupancy, error)
	CountBooked(ctx context.Context, slotID string) (int, error)
	// DeleteSlot removes the slot's bookings and then the slot in one unit of work.
	DeleteSlot(ctx context.Context, id string) error
}

// BookingFilter narrows booking listings. Empty fields do not filter.
type BookingFilter struct {
	SlotCreatedBy    string
	UserID           string
	Status           BookingStatus
	SlotStartsFrom   *time.Time
	SlotStartsBefore *time.Time
}

// BookingRepository stores the booking ledger.
type BookingRepository interface {
	// CreateBooking atomically verifies the slot exists (ErrNotFound), has a free
	// seat (ErrSlotFull) and is not already booked by the same user
	// (ErrDuplicateBooking) before inserting the booking.
	CreateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	// CancelBooking moves a booking to canceled and reports whether the status changed.
	CancelBooking(ctx context.Context, id string) (bool, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]BookingRecord, error)
}

// Store bundles every repository behind one handle.
type Store interface {
	UserRepository
	SettingRepository
	SlotRepository
	BookingRepository
	Close() error
}
