package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/appointment-booking/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository.
type BookingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	loc    *time.Location
}

// NewBookingRepository creates a booking repository.
func NewBookingRepository(pool *ConnectionPool, loc *time.Location) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		loc:    loc,
	}
}

// CreateBooking reads the slot, checks capacity, then checks for an active
// booking by the same user and inserts, all inside one write transaction.
// Postgres locks the slot row; SQLite holds the database write lock from BEGIN.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var capacity int
		err := r.helper.QueryRowTx(ctx, tx,
			`SELECT capacity FROM slots WHERE id = ?`+r.pool.dialect.lockClause(), booking.SlotID,
		).Scan(&capacity)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return r.mapper.MapError(err)
		}

		var booked int
		err = r.helper.QueryRowTx(ctx, tx,
			`SELECT COUNT(*) FROM bookings WHERE slot_id = ? AND status = 'booked'`, booking.SlotID,
		).Scan(&booked)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if booked >= capacity {
			return persistence.ErrSlotFull
		}

		if booking.UserID != nil {
			var existing int
			err = r.helper.QueryRowTx(ctx, tx,
				`SELECT COUNT(*) FROM bookings WHERE slot_id = ? AND user_id = ? AND status = 'booked'`,
				booking.SlotID, *booking.UserID,
			).Scan(&existing)
			if err != nil {
				return r.mapper.MapError(err)
			}
			if existing > 0 {
				return persistence.ErrDuplicateBooking
			}
		}

		_, err = r.helper.ExecTx(ctx, tx, `
			INSERT INTO bookings (id, slot_id, user_id, name, email, phone, notes, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'booked', ?)
		`,
			booking.ID,
			booking.SlotID,
			nullableString(booking.UserID),
			booking.Name,
			booking.Email,
			booking.Phone,
			booking.Notes,
			persistence.FormatTimestamp(booking.CreatedAt, r.loc),
		)
		if err != nil {
			if isActiveBookingConflict(err) {
				return persistence.ErrDuplicateBooking
			}
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// GetBooking retrieves a booking by ID.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	query := `
		SELECT id, slot_id, user_id, name, email, phone, notes, status, created_at
		FROM bookings
		WHERE id = ?
	`
	var booking persistence.Booking
	var userID sql.NullString
	var status, createdAt string
	err := r.helper.QueryRow(ctx, query, id).Scan(
		&booking.ID, &booking.SlotID, &userID, &booking.Name, &booking.Email,
		&booking.Phone, &booking.Notes, &status, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Booking{}, persistence.ErrNotFound
		}
		return persistence.Booking{}, r.mapper.MapError(err)
	}
	booking.UserID = stringPtr(userID)
	booking.Status = persistence.BookingStatus(status)
	if booking.CreatedAt, err = persistence.ParseTimestamp(createdAt, r.loc); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return booking, nil
}

// CancelBooking flips a booked booking to canceled. It reports false when the
// booking was already canceled.
func (r *BookingRepository) CancelBooking(ctx context.Context, id string) (bool, error) {
	changed := false
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var status string
		err := r.helper.QueryRowTx(ctx, tx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return r.mapper.MapError(err)
		}
		if persistence.BookingStatus(status) == persistence.BookingStatusCanceled {
			return nil
		}

		result, err := r.helper.ExecTx(ctx, tx,
			`UPDATE bookings SET status = 'canceled' WHERE id = ? AND status = 'booked'`, id,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		changed = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// ListBookings joins bookings with their slots, ordered by slot start, then
// booking creation time and ID.
func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.BookingRecord, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.SlotCreatedBy != "" {
		conditions = append(conditions, "s.created_by = ?")
		args = append(args, filter.SlotCreatedBy)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "b.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "b.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SlotStartsFrom != nil {
		conditions = append(conditions, "s.start_ts >= ?")
		args = append(args, persistence.FormatTimestamp(*filter.SlotStartsFrom, r.loc))
	}
	if filter.SlotStartsBefore != nil {
		conditions = append(conditions, "s.start_ts < ?")
		args = append(args, persistence.FormatTimestamp(*filter.SlotStartsBefore, r.loc))
	}

	query := `
		SELECT b.id, b.slot_id, b.user_id, b.name, b.email, b.phone, b.notes, b.status, b.created_at,
			s.start_ts, s.end_ts, s.created_by
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY s.start_ts ASC, b.created_at ASC, b.id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	out := make([]persistence.BookingRecord, 0)
	for rows.Next() {
		var rec persistence.BookingRecord
		var userID sql.NullString
		var status, createdAt, start, end string
		if err := rows.Scan(
			&rec.Booking.ID, &rec.Booking.SlotID, &userID, &rec.Booking.Name, &rec.Booking.Email,
			&rec.Booking.Phone, &rec.Booking.Notes, &status, &createdAt,
			&start, &end, &rec.SlotCreatedBy,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		rec.Booking.UserID = stringPtr(userID)
		rec.Booking.Status = persistence.BookingStatus(status)
		if rec.Booking.CreatedAt, err = persistence.ParseTimestamp(createdAt, r.loc); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if rec.SlotStart, err = persistence.ParseTimestamp(start, r.loc); err != nil {
			return nil, fmt.Errorf("failed to parse start_ts: %w", err)
		}
		if rec.SlotEnd, err = persistence.ParseTimestamp(end, r.loc); err != nil {
			return nil, fmt.Errorf("failed to parse end_ts: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
