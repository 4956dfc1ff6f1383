package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/appointment-booking/internal/notify"
	"github.com/example/appointment-booking/internal/persistence"
)

// NotificationWarning is returned with a booking whose confirmation could not be delivered.
const NotificationWarning = "booking confirmed, but the confirmation email could not be sent"

// ConfirmationNotifier delivers booking confirmations.
type ConfirmationNotifier interface {
	SendConfirmation(ctx context.Context, msg notify.Message) error
}

// BookingService coordinates the booking ledger and post-commit confirmations.
type BookingService struct {
	bookings    persistence.BookingRepository
	slots       persistence.SlotRepository
	users       persistence.UserRepository
	notifier    ConfirmationNotifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookingService constructs a booking service. notifier may be nil.
func NewBookingService(bookings persistence.BookingRepository, slots persistence.SlotRepository, users persistence.UserRepository, notifier ConfirmationNotifier, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, slots, users, notifier, idGenerator, now, nil)
}

// NewBookingServiceWithLogger constructs a booking service with a specified logger.
func NewBookingServiceWithLogger(bookings persistence.BookingRepository, slots persistence.SlotRepository, users persistence.UserRepository, notifier ConfirmationNotifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:    bookings,
		slots:       slots,
		users:       users,
		notifier:    notifier,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// BookSlot reserves one seat for the principal. Capacity, duplicate and
// existence checks run with the insert in one store transaction. The
// confirmation is sent after commit and never fails the booking.
func (s *BookingService) BookSlot(ctx context.Context, params BookSlotParams) (result BookingResult, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil || s.slots == nil || s.users == nil {
		err = fmt.Errorf("booking repositories not configured")
		return
	}

	logger := s.loggerWith(ctx, "BookSlot", "principal_id", params.Principal.UserID, "slot_id", params.SlotID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to book slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", result.Booking.ID).InfoContext(ctx, "slot booked")
	}()

	if !params.Principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	slotID := strings.TrimSpace(params.SlotID)
	if slotID == "" {
		vErr := &ValidationError{}
		vErr.add("slot_id", "slot is required")
		err = vErr
		return
	}

	contact, err := s.resolveContact(ctx, params.Principal, params.Contact)
	if err != nil {
		return
	}

	userID := params.Principal.UserID
	record := persistence.Booking{
		ID:        s.idGenerator(),
		SlotID:    slotID,
		UserID:    &userID,
		Name:      contact.Name,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Notes:     contact.Notes,
		Status:    persistence.BookingStatusBooked,
		CreatedAt: s.now(),
	}
	if err = s.bookings.CreateBooking(ctx, record); err != nil {
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			err = ErrSlotNotFound
		case errors.Is(err, persistence.ErrForeignKeyViolation):
			err = ErrUnauthenticated
		default:
			err = mapBookingRepoError(err)
		}
		return
	}

	booking := Booking{
		ID:        record.ID,
		SlotID:    record.SlotID,
		UserID:    userID,
		Contact:   contact,
		Status:    BookingStatusBooked,
		CreatedAt: record.CreatedAt,
	}
	if slot, slotErr := s.slots.GetSlot(ctx, slotID); slotErr == nil {
		booking.SlotStart = slot.Start
		booking.SlotEnd = slot.End
		booking.SlotCreatedBy = slot.CreatedBy
	} else {
		logger.WarnContext(ctx, "booked slot could not be reloaded", "error", slotErr)
	}

	result = BookingResult{Booking: booking, Warning: s.sendConfirmation(ctx, logger, booking)}
	return
}

func (s *BookingService) resolveContact(ctx context.Context, principal Principal, contact Contact) (Contact, error) {
	contact = Contact{
		Name:  strings.TrimSpace(contact.Name),
		Email: strings.TrimSpace(contact.Email),
		Phone: strings.TrimSpace(contact.Phone),
		Notes: strings.TrimSpace(contact.Notes),
	}
	if contact.Name != "" && contact.Email != "" {
		return contact, nil
	}

	account, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Contact{}, ErrUnauthenticated
		}
		return Contact{}, err
	}
	if contact.Name == "" {
		contact.Name = account.Name
	}
	if contact.Email == "" {
		contact.Email = account.Email
	}
	return contact, nil
}

// sendConfirmation returns a warning only when SMTP is configured and delivery failed.
func (s *BookingService) sendConfirmation(ctx context.Context, logger *slog.Logger, booking Booking) string {
	if s.notifier == nil || booking.Contact.Email == "" {
		return ""
	}

	err := s.notifier.SendConfirmation(ctx, confirmationMessage(booking))
	switch {
	case err == nil:
		return ""
	case errors.Is(err, notify.ErrNotConfigured):
		return ""
	default:
		logger.WarnContext(ctx, "booking confirmation not delivered", "error", err)
		return NotificationWarning
	}
}

func confirmationMessage(booking Booking) notify.Message {
	const layout = "2006-01-02 15:04"
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", booking.Contact.Name)
	if !booking.SlotStart.IsZero() {
		fmt.Fprintf(&body, "your booking for %s - %s is confirmed.\n", booking.SlotStart.Format(layout), booking.SlotEnd.Format("15:04"))
	} else {
		body.WriteString("your booking is confirmed.\n")
	}
	fmt.Fprintf(&body, "Booking reference: %s\n", booking.ID)

	msg := notify.Message{
		To:      booking.Contact.Email,
		Subject: "Booking confirmed",
		Body:    body.String(),
	}
	if !booking.SlotStart.IsZero() {
		msg.Subject = "Booking confirmed: " + booking.SlotStart.Format(layout)
		msg.Event = &notify.Event{
			UID:         booking.ID,
			Summary:     "Appointment",
			Description: booking.Contact.Notes,
			Start:       booking.SlotStart,
			End:         booking.SlotEnd,
		}
	}
	return msg
}

// CancelBooking moves a booking to canceled. Administrators may cancel any
// booking; other users only their own. Canceling twice is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, principal Principal, bookingID string) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return fmt.Errorf("booking repository not configured")
	}

	logger := s.loggerWith(ctx, "CancelBooking", "principal_id", principal.UserID, "booking_id", bookingID)
	changed := false
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking canceled", "changed", changed)
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}

	booking, getErr := s.bookings.GetBooking(ctx, bookingID)
	if getErr != nil {
		err = mapBookingRepoError(getErr)
		return
	}
	if !principal.IsAdmin && (booking.UserID == nil || *booking.UserID != principal.UserID) {
		err = ErrUnauthorized
		return
	}

	changed, err = s.bookings.CancelBooking(ctx, bookingID)
	if err != nil {
		err = mapBookingRepoError(err)
	}
	return
}

// ListBookings returns bookings joined with slot timing, ordered by slot start.
// An empty scope resolves to created_by for administrators and mine otherwise.
func (s *BookingService) ListBookings(ctx context.Context, params ListBookingsParams) ([]Booking, error) {
	if s == nil || s.bookings == nil {
		return nil, fmt.Errorf("booking repository not configured")
	}
	principal := params.Principal
	if !principal.Authenticated() {
		return nil, ErrUnauthenticated
	}

	scope := params.Scope
	if scope == "" {
		scope = BookingScopeMine
		if principal.IsAdmin {
			scope = BookingScopeCreatedBy
		}
	}

	filter := persistence.BookingFilter{
		SlotStartsFrom:   params.From,
		SlotStartsBefore: params.Until,
	}
	switch scope {
	case BookingScopeAll:
		if !principal.IsAdmin {
			return nil, ErrUnauthorized
		}
	case BookingScopeCreatedBy:
		if !principal.IsAdmin {
			return nil, ErrUnauthorized
		}
		filter.SlotCreatedBy = principal.UserID
	case BookingScopeMine:
		filter.UserID = principal.UserID
	default:
		vErr := &ValidationError{}
		vErr.add("scope", "scope must be one of all, created_by, mine")
		return nil, vErr
	}

	switch params.Status {
	case "":
	case BookingStatusBooked, BookingStatusCanceled:
		filter.Status = persistence.BookingStatus(params.Status)
	default:
		vErr := &ValidationError{}
		vErr.add("status", "status must be booked or canceled")
		return nil, vErr
	}

	records, err := s.bookings.ListBookings(ctx, filter)
	if err != nil {
		s.loggerWith(ctx, "ListBookings", "principal_id", principal.UserID, "scope", string(scope)).
			ErrorContext(ctx, "failed to list bookings", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}

	out := make([]Booking, 0, len(records))
	for _, record := range records {
		out = append(out, toBooking(record))
	}
	return out, nil
}

func toBooking(record persistence.BookingRecord) Booking {
	b := record.Booking
	out := Booking{
		ID:     b.ID,
		SlotID: b.SlotID,
		Contact: Contact{
			Name:  b.Name,
			Email: b.Email,
			Phone: b.Phone,
			Notes: b.Notes,
		},
		Status:        BookingStatus(b.Status),
		CreatedAt:     b.CreatedAt,
		SlotStart:     record.SlotStart,
		SlotEnd:       record.SlotEnd,
		SlotCreatedBy: record.SlotCreatedBy,
	}
	if b.UserID != nil {
		out.UserID = *b.UserID
	}
	return out
}
