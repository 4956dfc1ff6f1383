package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// Authenticated reports whether the principal carries a user identity.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// User is the account view exposed by services. Credentials never leave the service layer.
type User struct {
	ID        string
	Name      string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
}

// UserInput captures caller provided account fields.
type UserInput struct {
	Name     string
	Email    string
	Password string
	IsAdmin  bool
}

// CreateUserParams wraps the data required to create an account.
type CreateUserParams struct {
	Input UserInput
}

// AuthenticateParams carries login credentials.
type AuthenticateParams struct {
	Email    string
	Password string
}

// Session is a signed, stateless session token.
type Session struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthenticateResult is returned by a successful login.
type AuthenticateResult struct {
	User    User
	Session Session
}

// Slot is a bookable window with a seat capacity.
type Slot struct {
	ID        string
	Start     time.Time
	End       time.Time
	Capacity  int
	CreatedBy string
	CreatedAt time.Time
}

// SlotInput captures the fields of a single slot.
type SlotInput struct {
	Start    time.Time
	End      time.Time
	Capacity int
}

// CreateSlotParams wraps the data required to create one slot.
type CreateSlotParams struct {
	Principal Principal
	Input     SlotInput
}

// RecurringSlotInput describes a batch of slots tiled over a date range.
// StartDate and EndDate are calendar days; DailyStart and DailyEnd are
// offsets from midnight.
type RecurringSlotInput struct {
	StartDate       time.Time
	EndDate         time.Time
	DailyStart      time.Duration
	DailyEnd        time.Duration
	DurationMinutes int
	Capacity        int
	Weekdays        []time.Weekday
}

// CreateRecurringSlotsParams wraps the data required to generate slots.
type CreateRecurringSlotsParams struct {
	Principal Principal
	Input     RecurringSlotInput
}

// SlotAvailability annotates a slot with live seat counts.
type SlotAvailability struct {
	Slot      Slot
	Booked    int
	Available int
}

// DayAvailability groups the slots starting on one calendar day.
type DayAvailability struct {
	Date  time.Time
	Slots []SlotAvailability
}

// Contact holds the booker's free-text contact fields.
type Contact struct {
	Name  string
	Email string
	Phone string
	Notes string
}

// BookingStatus enumerates the booking lifecycle.
type BookingStatus string

const (
	// BookingStatusBooked marks a booking that holds a seat.
	BookingStatusBooked BookingStatus = "booked"
	// BookingStatusCanceled marks a booking that released its seat.
	BookingStatusCanceled BookingStatus = "canceled"
)

// Booking is a reservation joined with the timing of its slot.
type Booking struct {
	ID            string
	SlotID        string
	UserID        string
	Contact       Contact
	Status        BookingStatus
	CreatedAt     time.Time
	SlotStart     time.Time
	SlotEnd       time.Time
	SlotCreatedBy string
}

// BookSlotParams wraps the data required to reserve a seat.
type BookSlotParams struct {
	Principal Principal
	SlotID    string
	Contact   Contact
}

// BookingResult carries the created booking and an advisory notification warning.
type BookingResult struct {
	Booking Booking
	Warning string
}

// BookingScope selects which bookings a listing returns.
type BookingScope string

const (
	// BookingScopeAll lists every booking. Administrators only.
	BookingScopeAll BookingScope = "all"
	// BookingScopeCreatedBy lists bookings on slots created by the principal. Administrators only.
	BookingScopeCreatedBy BookingScope = "created_by"
	// BookingScopeMine lists the principal's own bookings.
	BookingScopeMine BookingScope = "mine"
)

// ListBookingsParams wraps a booking listing request.
type ListBookingsParams struct {
	Principal Principal
	Scope     BookingScope
	// Status optionally narrows the listing; empty lists every status.
	Status BookingStatus
	From   *time.Time
	Until  *time.Time
}
