package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/appointment-booking/internal/persistence"
)

var (
	userCounter    uint64
	slotCounter    uint64
	bookingCounter uint64
)

var referenceTime = time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserOption configures a generated user.
type UserOption func(*persistence.User)

// NewUser returns a deterministic user record with optional overrides.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	user := persistence.User{
		ID:           id,
		Name:         fmt.Sprintf("User %03d", idx),
		Email:        fmt.Sprintf("%s@example.com", id),
		Salt:         fmt.Sprintf("salt-%03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(u *persistence.User) { u.ID = id }
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(u *persistence.User) { u.Email = email }
}

// WithUserAdmin sets the admin flag.
func WithUserAdmin(isAdmin bool) UserOption {
	return func(u *persistence.User) { u.IsAdmin = isAdmin }
}

// ----------------------------- Slot fixtures -----------------------------

// SlotOption configures a generated slot.
type SlotOption func(*persistence.Slot)

// NewSlot returns a thirty minute slot with capacity one created by owner.
func NewSlot(owner string, start time.Time, opts ...SlotOption) persistence.Slot {
	idx := atomic.AddUint64(&slotCounter, 1)
	slot := persistence.Slot{
		ID:        fmt.Sprintf("slot-%03d", idx),
		Start:     start,
		End:       start.Add(30 * time.Minute),
		Capacity:  1,
		CreatedBy: owner,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&slot)
	}
	return slot
}

// WithSlotID overrides the generated slot ID.
func WithSlotID(id string) SlotOption {
	return func(s *persistence.Slot) { s.ID = id }
}

// WithCapacity overrides the seat capacity.
func WithCapacity(capacity int) SlotOption {
	return func(s *persistence.Slot) { s.Capacity = capacity }
}

// WithDuration overrides the slot length.
func WithDuration(d time.Duration) SlotOption {
	return func(s *persistence.Slot) { s.End = s.Start.Add(d) }
}

// ---------------------------- Booking fixtures ----------------------------

// BookingOption configures a generated booking.
type BookingOption func(*persistence.Booking)

// NewBooking returns an active booking of slotID held by userID. An empty
// userID produces an anonymous booking.
func NewBooking(slotID, userID string, opts ...BookingOption) persistence.Booking {
	idx := atomic.AddUint64(&bookingCounter, 1)
	booking := persistence.Booking{
		ID:        fmt.Sprintf("booking-%03d", idx),
		SlotID:    slotID,
		Name:      fmt.Sprintf("Guest %03d", idx),
		Email:     fmt.Sprintf("guest-%03d@example.com", idx),
		Status:    persistence.BookingStatusBooked,
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Second),
	}
	if userID != "" {
		booking.UserID = &userID
	}
	for _, opt := range opts {
		opt(&booking)
	}
	return booking
}

// WithBookingID overrides the generated booking ID.
func WithBookingID(id string) BookingOption {
	return func(b *persistence.Booking) { b.ID = id }
}

// WithBookingCreatedAt overrides the creation timestamp.
func WithBookingCreatedAt(t time.Time) BookingOption {
	return func(b *persistence.Booking) { b.CreatedAt = t }
}

// ------------------------------- Seeding -------------------------------

// Seed inserts users, then slots, then bookings, stopping at the first error.
func Seed(ctx context.Context, store persistence.Store, users []persistence.User, slots []persistence.Slot, bookings []persistence.Booking) error {
	for _, user := range users {
		if err := store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("seed user %s: %w", user.ID, err)
		}
	}
	if len(slots) > 0 {
		if err := store.CreateSlots(ctx, slots...); err != nil {
			return fmt.Errorf("seed slots: %w", err)
		}
	}
	for _, booking := range bookings {
		if err := store.CreateBooking(ctx, booking); err != nil {
			return fmt.Errorf("seed booking %s: %w", booking.ID, err)
		}
	}
	return nil
}
