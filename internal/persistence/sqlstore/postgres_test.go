package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/appointment-booking/internal/persistence"
)

func newPostgresMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, DialectPostgres, time.UTC, nil), mock
}

func TestDialect_Rebind(t *testing.T) {
	query := "SELECT * FROM bookings WHERE slot_id = ? AND user_id = ?"
	assert.Equal(t, query, DialectSQLite.Rebind(query))
	assert.Equal(t, "SELECT * FROM bookings WHERE slot_id = $1 AND user_id = $2", DialectPostgres.Rebind(query))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	d, err = ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestPostgresCreateBooking_LocksSlotRow(t *testing.T) {
	store, mock := newPostgresMock(t)
	created := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM slots WHERE id = $1 FOR UPDATE")).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE slot_id = $1 AND status = 'booked'")).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE slot_id = $1 AND user_id = $2 AND status = 'booked'")).
		WithArgs("slot-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WithArgs("booking-1", "slot-1", "user-1", "Ada", "ada@example.com", "", "", "2025-03-10T08:00:00").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	userID := "user-1"
	err := store.CreateBooking(context.Background(), persistence.Booking{
		ID: "booking-1", SlotID: "slot-1", UserID: &userID, Name: "Ada", Email: "ada@example.com", CreatedAt: created,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateBooking_FullSlotRollsBack(t *testing.T) {
	store, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM slots WHERE id = $1 FOR UPDATE")).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE slot_id = $1 AND status = 'booked'")).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := store.CreateBooking(context.Background(), persistence.Booking{ID: "booking-1", SlotID: "slot-1"})
	assert.ErrorIs(t, err, persistence.ErrSlotFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateBooking_UniqueIndexMapsToDuplicateBooking(t *testing.T) {
	store, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM slots WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE slot_id = $1 AND status = 'booked'")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE slot_id = $1 AND user_id = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ux_bookings_slot_user_active"})
	mock.ExpectRollback()

	userID := "user-1"
	err := store.CreateBooking(context.Background(), persistence.Booking{ID: "booking-1", SlotID: "slot-1", UserID: &userID})
	assert.ErrorIs(t, err, persistence.ErrDuplicateBooking)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateBooking_MissingSlot(t *testing.T) {
	store, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM slots WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}))
	mock.ExpectRollback()

	err := store.CreateBooking(context.Background(), persistence.Booking{ID: "booking-1", SlotID: "missing"})
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListSlots_RebindsFilters(t *testing.T) {
	store, mock := newPostgresMock(t)
	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	before := from.AddDate(0, 0, 1)

	rows := sqlmock.NewRows([]string{"id", "start_ts", "end_ts", "capacity", "created_by", "created_at", "booked"}).
		AddRow("slot-1", "2025-03-10T09:00:00", "2025-03-10T09:30:00", 2, "admin", "2025-03-01T08:00:00", 1)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.start_ts >= $1 AND s.start_ts < $2 ORDER BY s.start_ts ASC, s.id ASC")).
		WithArgs("2025-03-10T00:00:00", "2025-03-11T00:00:00").
		WillReturnRows(rows)

	slots, err := store.ListSlots(context.Background(), persistence.SlotFilter{StartsFrom: &from, StartsBefore: &before})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].Booked)
	assert.Equal(t, 9, slots[0].Slot.Start.Hour())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorMapper_MapError(t *testing.T) {
	mapper := NewErrorMapper()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "pq unique", err: &pq.Error{Code: "23505"}, want: persistence.ErrDuplicate},
		{name: "pq foreign key", err: &pq.Error{Code: "23503"}, want: persistence.ErrForeignKeyViolation},
		{name: "pq check", err: &pq.Error{Code: "23514"}, want: persistence.ErrConstraintViolation},
		{name: "sqlite unique", err: errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), want: persistence.ErrDuplicate},
		{name: "sqlite foreign key", err: errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), want: persistence.ErrForeignKeyViolation},
		{name: "sqlite check", err: errors.New("constraint failed: CHECK constraint failed: capacity >= 1 (275)"), want: persistence.ErrConstraintViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapper.MapError(tt.err), tt.want)
		})
	}

	plain := errors.New("connection reset")
	assert.Equal(t, plain, mapper.MapError(plain))
	assert.Nil(t, mapper.MapError(nil))
}

func TestPostgresCreateFirstUser_LocksUsersTable(t *testing.T) {
	user := persistence.User{
		ID: "user-1", Name: "Root", Email: "Root@Example.com", Salt: "salt", PasswordHash: "hash", IsAdmin: true,
		CreatedAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
	}

	t.Run("inserts into an empty table", func(t *testing.T) {
		store, mock := newPostgresMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
			WithArgs("user-1", "Root", "root@example.com", "salt", "hash", true, "2025-03-10T08:00:00").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.CreateFirstUser(context.Background(), user))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refuses once an account exists", func(t *testing.T) {
		store, mock := newPostgresMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		err := store.CreateFirstUser(context.Background(), user)
		assert.ErrorIs(t, err, persistence.ErrUsersExist)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
