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

// SlotRepository implements persistence.SlotRepository.
type SlotRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	loc    *time.Location
}

// NewSlotRepository creates a slot repository.
func NewSlotRepository(pool *ConnectionPool, loc *time.Location) *SlotRepository {
	return &SlotRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		loc:    loc,
	}
}

// CreateSlots inserts every slot in one transaction.
func (r *SlotRepository) CreateSlots(ctx context.Context, slots ...persistence.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	for _, slot := range slots {
		if slot.ID == "" || slot.Capacity < 1 || !slot.End.After(slot.Start) {
			return persistence.ErrConstraintViolation
		}
	}

	query := `
		INSERT INTO slots (id, start_ts, end_ts, capacity, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, slot := range slots {
			_, err := r.helper.ExecTx(ctx, tx, query,
				slot.ID,
				persistence.FormatTimestamp(slot.Start, r.loc),
				persistence.FormatTimestamp(slot.End, r.loc),
				slot.Capacity,
				slot.CreatedBy,
				persistence.FormatTimestamp(slot.CreatedAt, r.loc),
			)
			if err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// GetSlot retrieves a slot by ID.
func (r *SlotRepository) GetSlot(ctx context.Context, id string) (persistence.Slot, error) {
	query := `
		SELECT id, start_ts, end_ts, capacity, created_by, created_at
		FROM slots
		WHERE id = ?
	`
	var slot persistence.Slot
	var start, end, createdAt string
	err := r.helper.QueryRow(ctx, query, id).Scan(
		&slot.ID, &start, &end, &slot.Capacity, &slot.CreatedBy, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Slot{}, persistence.ErrNotFound
		}
		return persistence.Slot{}, r.mapper.MapError(err)
	}
	if err := r.parseSlotTimes(&slot, start, end, createdAt); err != nil {
		return persistence.Slot{}, err
	}
	return slot, nil
}

// ListSlots returns slots matching filter ordered by start, with booked
// counts computed in the same statement.
func (r *SlotRepository) ListSlots(ctx context.Context, filter persistence.SlotFilter) ([]persistence.SlotOccupancy, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.StartsFrom != nil {
		conditions = append(conditions, "s.start_ts >= ?")
		args = append(args, persistence.FormatTimestamp(*filter.StartsFrom, r.loc))
	}
	if filter.StartsBefore != nil {
		conditions = append(conditions, "s.start_ts < ?")
		args = append(args, persistence.FormatTimestamp(*filter.StartsBefore, r.loc))
	}
	if filter.CreatedBy != "" {
		conditions = append(conditions, "s.created_by = ?")
		args = append(args, filter.CreatedBy)
	}

	query := `
		SELECT s.id, s.start_ts, s.end_ts, s.capacity, s.created_by, s.created_at,
			(SELECT COUNT(*) FROM bookings b WHERE b.slot_id = s.id AND b.status = 'booked')
		FROM slots s
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY s.start_ts ASC, s.id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	out := make([]persistence.SlotOccupancy, 0)
	for rows.Next() {
		var occ persistence.SlotOccupancy
		var start, end, createdAt string
		if err := rows.Scan(
			&occ.Slot.ID, &start, &end, &occ.Slot.Capacity, &occ.Slot.CreatedBy, &createdAt, &occ.Booked,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if err := r.parseSlotTimes(&occ.Slot, start, end, createdAt); err != nil {
			return nil, err
		}
		out = append(out, occ)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

// CountBooked returns the number of booked bookings for the slot.
func (r *SlotRepository) CountBooked(ctx context.Context, slotID string) (int, error) {
	var count int
	err := r.helper.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE slot_id = ? AND status = 'booked'`, slotID,
	).Scan(&count)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// DeleteSlot removes the slot's bookings and then the slot in one transaction.
func (r *SlotRepository) DeleteSlot(ctx context.Context, id string) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(ctx, tx, `DELETE FROM bookings WHERE slot_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := r.helper.ExecTx(ctx, tx, `DELETE FROM slots WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

func (r *SlotRepository) parseSlotTimes(slot *persistence.Slot, start, end, createdAt string) error {
	var err error
	if slot.Start, err = persistence.ParseTimestamp(start, r.loc); err != nil {
		return fmt.Errorf("failed to parse start_ts: %w", err)
	}
	if slot.End, err = persistence.ParseTimestamp(end, r.loc); err != nil {
		return fmt.Errorf("failed to parse end_ts: %w", err)
	}
	if slot.CreatedAt, err = persistence.ParseTimestamp(createdAt, r.loc); err != nil {
		return fmt.Errorf("failed to parse created_at: %w", err)
	}
	return nil
}
