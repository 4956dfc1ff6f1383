package persistence

import "time"

// User represents an account able to book slots or, with IsAdmin, to manage them.
type User struct {
	ID           string
	Name         string
	Email        string
	Salt         string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Slot is a bookable time window with a seat capacity.
type Slot struct {
	ID        string
	Start     time.Time
	End       time.Time
	Capacity  int
	CreatedBy string
	CreatedAt time.Time
}

// SlotOccupancy pairs a slot with the number of active bookings counted at read time.
type SlotOccupancy struct {
	Slot   Slot
	Booked int
}

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
	// BookingStatusBooked marks a booking that holds a seat.
	BookingStatusBooked BookingStatus = "booked"
	// BookingStatusCanceled marks a booking that released its seat.
	BookingStatusCanceled BookingStatus = "canceled"
)

// Booking is a reservation of one seat within a slot.
type Booking struct {
	ID        string
	SlotID    string
	UserID    *string
	Name      string
	Email     string
	Phone     string
	Notes     string
	Status    BookingStatus
	CreatedAt time.Time
}

// BookingRecord joins a booking with the timing and owner of its slot.
type BookingRecord struct {
	Booking       Booking
	SlotStart     time.Time
	SlotEnd       time.Time
	SlotCreatedBy string
}

// Setting is a key/value configuration entry.
type Setting struct {
	Key   string
	Value string
}
