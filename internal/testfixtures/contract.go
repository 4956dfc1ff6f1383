package testfixtures

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/appointment-booking/internal/persistence"
)

// StoreOpener returns an empty, ready to use store.
type StoreOpener func(t *testing.T) persistence.Store

// RunStoreContract checks the behaviour every persistence.Store must share.
// Timestamps passed to the store are in UTC so that SQL backends opened in
// UTC round-trip them exactly.
func RunStoreContract(t *testing.T, open StoreOpener) {
	t.Helper()

	t.Run("users", func(t *testing.T) { userContract(t, open(t)) })
	t.Run("first user", func(t *testing.T) { firstUserContract(t, open(t)) })
	t.Run("settings", func(t *testing.T) { settingContract(t, open(t)) })
	t.Run("slots", func(t *testing.T) { slotContract(t, open(t)) })
	t.Run("bookings", func(t *testing.T) { bookingContract(t, open(t)) })
}

func contractTime(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func userContract(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	admin := NewUser(WithUserEmail("Admin@Example.com"), WithUserAdmin(true))
	require.NoError(t, store.CreateUser(ctx, admin))

	got, err := store.GetUser(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", got.Email)
	assert.True(t, got.IsAdmin)

	got, err = store.GetUserByEmail(ctx, "ADMIN@example.com")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)

	err = store.CreateUser(ctx, NewUser(WithUserEmail("admin@EXAMPLE.com")))
	assert.ErrorIs(t, err, persistence.ErrDuplicate)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	count, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func firstUserContract(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	const contenders = 8
	candidates := make([]persistence.User, contenders)
	for i := range candidates {
		candidates[i] = NewUser(WithUserAdmin(true))
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]error, contenders)
	)
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, user persistence.User) {
			defer wg.Done()
			<-start
			results[i] = store.CreateFirstUser(ctx, user)
		}(i, candidate)
	}
	close(start)
	wg.Wait()

	created := 0
	for _, err := range results {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, persistence.ErrUsersExist)
	}
	assert.Equal(t, 1, created, "exactly one first user may be created")

	count, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = store.CreateFirstUser(ctx, NewUser())
	assert.ErrorIs(t, err, persistence.ErrUsersExist)
	require.NoError(t, store.CreateUser(ctx, NewUser()), "regular inserts still work once a user exists")
}

func settingContract(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	_, err := store.GetSetting(ctx, "smtp_host")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, store.UpsertSetting(ctx, "smtp_host", "a.example.com"))
	require.NoError(t, store.UpsertSetting(ctx, "smtp_host", "b.example.com"))
	require.NoError(t, store.UpsertSetting(ctx, "from_email", "desk@example.com"))

	value, err := store.GetSetting(ctx, "smtp_host")
	require.NoError(t, err)
	assert.Equal(t, "b.example.com", value)

	settings, err := store.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []persistence.Setting{
		{Key: "from_email", Value: "desk@example.com"},
		{Key: "smtp_host", Value: "b.example.com"},
	}, settings)
}

func slotContract(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	owner := NewUser(WithUserAdmin(true))
	other := NewUser(WithUserAdmin(true))
	guest := NewUser()
	require.NoError(t, Seed(ctx, store, []persistence.User{owner, other, guest}, nil, nil))

	orphan := NewSlot("missing-user", contractTime(4, 8, 0))
	valid := NewSlot(owner.ID, contractTime(4, 8, 30))
	err := store.CreateSlots(ctx, valid, orphan)
	assert.ErrorIs(t, err, persistence.ErrForeignKeyViolation)
	_, err = store.GetSlot(ctx, valid.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound, "a failed batch must not leave partial rows")

	late := NewSlot(owner.ID, contractTime(4, 14, 0), WithCapacity(2))
	early := NewSlot(other.ID, contractTime(4, 9, 0), WithCapacity(3))
	nextDay := NewSlot(owner.ID, contractTime(5, 9, 0))
	require.NoError(t, store.CreateSlots(ctx, late, early, nextDay))
	require.NoError(t, store.CreateBooking(ctx, NewBooking(late.ID, guest.ID)))

	got, err := store.GetSlot(ctx, late.ID)
	require.NoError(t, err)
	assert.True(t, got.Start.Equal(late.Start))
	assert.True(t, got.End.Equal(late.End))
	assert.Equal(t, 2, got.Capacity)
	assert.Equal(t, owner.ID, got.CreatedBy)

	from, before := contractTime(4, 0, 0), contractTime(5, 0, 0)
	listed, err := store.ListSlots(ctx, persistence.SlotFilter{StartsFrom: &from, StartsBefore: &before})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, early.ID, listed[0].Slot.ID)
	assert.Equal(t, late.ID, listed[1].Slot.ID)
	assert.Equal(t, 0, listed[0].Booked)
	assert.Equal(t, 1, listed[1].Booked)

	mine, err := store.ListSlots(ctx, persistence.SlotFilter{CreatedBy: owner.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	booked, err := store.CountBooked(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, booked)

	require.NoError(t, store.DeleteSlot(ctx, late.ID))
	_, err = store.GetSlot(ctx, late.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	records, err := store.ListBookings(ctx, persistence.BookingFilter{UserID: guest.ID})
	require.NoError(t, err)
	assert.Empty(t, records, "deleting a slot removes its bookings")
	assert.ErrorIs(t, store.DeleteSlot(ctx, late.ID), persistence.ErrNotFound)
}

func bookingContract(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	owner := NewUser(WithUserAdmin(true))
	ann := NewUser()
	bob := NewUser()
	single := NewSlot(owner.ID, contractTime(4, 10, 0))
	double := NewSlot(owner.ID, contractTime(4, 9, 0), WithCapacity(2))
	require.NoError(t, Seed(ctx, store, []persistence.User{owner, ann, bob}, []persistence.Slot{single, double}, nil))

	first := NewBooking(single.ID, ann.ID)
	require.NoError(t, store.CreateBooking(ctx, first))
	assert.ErrorIs(t, store.CreateBooking(ctx, NewBooking(single.ID, bob.ID)), persistence.ErrSlotFull)
	assert.ErrorIs(t, store.CreateBooking(ctx, NewBooking(single.ID, ann.ID)), persistence.ErrSlotFull, "capacity is checked before duplicates")
	assert.ErrorIs(t, store.CreateBooking(ctx, NewBooking("missing", ann.ID)), persistence.ErrNotFound)

	ghost := NewBooking(double.ID, "ghost-user")
	assert.ErrorIs(t, store.CreateBooking(ctx, ghost), persistence.ErrForeignKeyViolation)
	_, err := store.GetBooking(ctx, ghost.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound, "a rejected booking must not be stored")

	annDouble := NewBooking(double.ID, ann.ID)
	require.NoError(t, store.CreateBooking(ctx, annDouble))
	assert.ErrorIs(t, store.CreateBooking(ctx, NewBooking(double.ID, ann.ID)), persistence.ErrDuplicateBooking)
	anonymous := NewBooking(double.ID, "")
	require.NoError(t, store.CreateBooking(ctx, anonymous))

	got, err := store.GetBooking(ctx, anonymous.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)
	assert.Equal(t, persistence.BookingStatusBooked, got.Status)

	changed, err := store.CancelBooking(ctx, annDouble.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = store.CancelBooking(ctx, annDouble.ID)
	require.NoError(t, err)
	assert.False(t, changed, "canceling twice reports no change")
	_, err = store.CancelBooking(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	rebooked := NewBooking(double.ID, ann.ID)
	require.NoError(t, store.CreateBooking(ctx, rebooked), "a canceled booking frees the seat and the user")

	all, err := store.ListBookings(ctx, persistence.BookingFilter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, record := range all {
		ids = append(ids, record.Booking.ID)
	}
	assert.Equal(t, []string{annDouble.ID, anonymous.ID, rebooked.ID, first.ID}, ids)
	assert.True(t, all[0].SlotStart.Equal(double.Start))
	assert.Equal(t, owner.ID, all[0].SlotCreatedBy)

	active, err := store.ListBookings(ctx, persistence.BookingFilter{UserID: ann.ID, Status: persistence.BookingStatusBooked})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, rebooked.ID, active[0].Booking.ID)

	from, before := contractTime(4, 10, 0), contractTime(4, 11, 0)
	windowed, err := store.ListBookings(ctx, persistence.BookingFilter{SlotStartsFrom: &from, SlotStartsBefore: &before})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, first.ID, windowed[0].Booking.ID)
}
