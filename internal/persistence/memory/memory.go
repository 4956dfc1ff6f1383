// Package memory provides a mutex-guarded in-process implementation of the
// persistence repositories. It follows the same semantics as the SQL store,
// including the atomic booking check, and backs tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/example/appointment-booking/internal/persistence"
)

// Storage keeps every table in maps guarded by a single RWMutex.
type Storage struct {
	mu       sync.RWMutex
	users    map[string]persistence.User
	slots    map[string]persistence.Slot
	bookings map[string]persistence.Booking
	settings map[string]string
}

var _ persistence.Store = (*Storage)(nil)

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{
		users:    make(map[string]persistence.User),
		slots:    make(map[string]persistence.Slot),
		bookings: make(map[string]persistence.Booking),
		settings: make(map[string]string),
	}
}

// Close is a no-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("memory: user %s: %w", user.ID, persistence.ErrDuplicate)
	}
	if err := s.ensureUniqueEmailLocked(user.Email); err != nil {
		return err
	}

	user.Email = normalizeEmail(user.Email)
	s.users[user.ID] = user
	return nil
}

// CreateFirstUser stores user only when no user exists yet.
func (s *Storage) CreateFirstUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.users) > 0 {
		return persistence.ErrUsersExist
	}
	if user.ID == "" {
		return persistence.ErrConstraintViolation
	}
	user.Email = normalizeEmail(user.Email)
	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetUserByEmail retrieves a user by normalized email address.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := normalizeEmail(email)
	for _, user := range s.users {
		if user.Email == lower {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

// CountUsers returns the number of stored users.
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *Storage) ensureUniqueEmailLocked(email string) error {
	lower := normalizeEmail(email)
	for _, user := range s.users {
		if user.Email == lower {
			return fmt.Errorf("memory: email %s: %w", lower, persistence.ErrDuplicate)
		}
	}
	return nil
}

// --- SettingRepository implementation ---

// UpsertSetting creates or replaces a setting.
func (s *Storage) UpsertSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return persistence.ErrConstraintViolation
	}
	s.mu.Lock()
	s.settings[key] = value
	s.mu.Unlock()
	return nil
}

// GetSetting returns the value stored for key.
func (s *Storage) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.settings[key]
	if !ok {
		return "", persistence.ErrNotFound
	}
	return value, nil
}

// ListSettings returns all settings ordered by key.
func (s *Storage) ListSettings(ctx context.Context) ([]persistence.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Setting, 0, len(s.settings))
	for key, value := range s.settings {
		out = append(out, persistence.Setting{Key: key, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// --- SlotRepository implementation ---

// CreateSlots validates every slot before inserting any of them.
func (s *Storage) CreateSlots(ctx context.Context, slots ...persistence.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if slot.ID == "" || slot.Capacity < 1 || !slot.End.After(slot.Start) {
			return persistence.ErrConstraintViolation
		}
		if _, ok := s.slots[slot.ID]; ok {
			return fmt.Errorf("memory: slot %s: %w", slot.ID, persistence.ErrDuplicate)
		}
		if _, ok := seen[slot.ID]; ok {
			return fmt.Errorf("memory: slot %s: %w", slot.ID, persistence.ErrDuplicate)
		}
		if _, ok := s.users[slot.CreatedBy]; !ok {
			return persistence.ErrForeignKeyViolation
		}
		seen[slot.ID] = struct{}{}
	}
	for _, slot := range slots {
		s.slots[slot.ID] = slot
	}
	return nil
}

// GetSlot retrieves a slot by ID.
func (s *Storage) GetSlot(ctx context.Context, id string) (persistence.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[id]
	if !ok {
		return persistence.Slot{}, persistence.ErrNotFound
	}
	return slot, nil
}

// ListSlots returns matching slots ordered by start time with live booked counts.
func (s *Storage) ListSlots(ctx context.Context, filter persistence.SlotFilter) ([]persistence.SlotOccupancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.SlotOccupancy, 0)
	for _, slot := range s.slots {
		if !matchesSlotFilter(slot, filter) {
			continue
		}
		out = append(out, persistence.SlotOccupancy{Slot: slot, Booked: s.countBookedLocked(slot.ID)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot.Start.Equal(out[j].Slot.Start) {
			return out[i].Slot.ID < out[j].Slot.ID
		}
		return out[i].Slot.Start.Before(out[j].Slot.Start)
	})
	return out, nil
}

// CountBooked returns the number of booked bookings referencing the slot.
func (s *Storage) CountBooked(ctx context.Context, slotID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countBookedLocked(slotID), nil
}

// DeleteSlot removes the slot's bookings and then the slot.
func (s *Storage) DeleteSlot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[id]; !ok {
		return persistence.ErrNotFound
	}
	for bookingID, booking := range s.bookings {
		if booking.SlotID == id {
			delete(s.bookings, bookingID)
		}
	}
	delete(s.slots, id)
	return nil
}

func (s *Storage) countBookedLocked(slotID string) int {
	count := 0
	for _, booking := range s.bookings {
		if booking.SlotID == slotID && booking.Status == persistence.BookingStatusBooked {
			count++
		}
	}
	return count
}

// --- BookingRepository implementation ---

// CreateBooking checks the slot, capacity, duplicates and the booking user,
// then inserts, all under the write lock.
func (s *Storage) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if booking.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.bookings[booking.ID]; ok {
		return fmt.Errorf("memory: booking %s: %w", booking.ID, persistence.ErrDuplicate)
	}

	slot, ok := s.slots[booking.SlotID]
	if !ok {
		return persistence.ErrNotFound
	}
	if s.countBookedLocked(slot.ID) >= slot.Capacity {
		return persistence.ErrSlotFull
	}
	if booking.UserID != nil {
		for _, existing := range s.bookings {
			if existing.SlotID == slot.ID && existing.Status == persistence.BookingStatusBooked &&
				existing.UserID != nil && *existing.UserID == *booking.UserID {
				return persistence.ErrDuplicateBooking
			}
		}
		if _, ok := s.users[*booking.UserID]; !ok {
			return fmt.Errorf("memory: booking user %s: %w", *booking.UserID, persistence.ErrForeignKeyViolation)
		}
	}

	booking.Status = persistence.BookingStatusBooked
	booking.UserID = cloneString(booking.UserID)
	s.bookings[booking.ID] = booking
	return nil
}

// GetBooking retrieves a booking by ID.
func (s *Storage) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	booking, ok := s.bookings[id]
	if !ok {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return cloneBooking(booking), nil
}

// CancelBooking marks a booking canceled. Canceling twice reports no change.
func (s *Storage) CancelBooking(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[id]
	if !ok {
		return false, persistence.ErrNotFound
	}
	if booking.Status == persistence.BookingStatusCanceled {
		return false, nil
	}
	booking.Status = persistence.BookingStatusCanceled
	s.bookings[id] = booking
	return true, nil
}

// ListBookings joins bookings with their slots and orders them by slot start.
func (s *Storage) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.BookingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.BookingRecord, 0)
	for _, booking := range s.bookings {
		slot, ok := s.slots[booking.SlotID]
		if !ok {
			continue
		}
		if !matchesBookingFilter(booking, slot, filter) {
			continue
		}
		out = append(out, persistence.BookingRecord{
			Booking:       cloneBooking(booking),
			SlotStart:     slot.Start,
			SlotEnd:       slot.End,
			SlotCreatedBy: slot.CreatedBy,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.SlotStart.Equal(b.SlotStart) {
			return a.SlotStart.Before(b.SlotStart)
		}
		if !a.Booking.CreatedAt.Equal(b.Booking.CreatedAt) {
			return a.Booking.CreatedAt.Before(b.Booking.CreatedAt)
		}
		return a.Booking.ID < b.Booking.ID
	})
	return out, nil
}

func matchesSlotFilter(slot persistence.Slot, filter persistence.SlotFilter) bool {
	if filter.CreatedBy != "" && slot.CreatedBy != filter.CreatedBy {
		return false
	}
	if filter.StartsFrom != nil && slot.Start.Before(*filter.StartsFrom) {
		return false
	}
	if filter.StartsBefore != nil && !slot.Start.Before(*filter.StartsBefore) {
		return false
	}
	return true
}

func matchesBookingFilter(booking persistence.Booking, slot persistence.Slot, filter persistence.BookingFilter) bool {
	if filter.SlotCreatedBy != "" && slot.CreatedBy != filter.SlotCreatedBy {
		return false
	}
	if filter.UserID != "" && (booking.UserID == nil || *booking.UserID != filter.UserID) {
		return false
	}
	if filter.Status != "" && booking.Status != filter.Status {
		return false
	}
	if filter.SlotStartsFrom != nil && slot.Start.Before(*filter.SlotStartsFrom) {
		return false
	}
	if filter.SlotStartsBefore != nil && !slot.Start.Before(*filter.SlotStartsBefore) {
		return false
	}
	return true
}

func cloneBooking(booking persistence.Booking) persistence.Booking {
	booking.UserID = cloneString(booking.UserID)
	return booking
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
