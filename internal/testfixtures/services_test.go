package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/appointment-booking/internal/application"
	"github.com/example/appointment-booking/internal/persistence/memory"
)

func TestServiceFactoryUsesDeterministicIDsAndClock(t *testing.T) {
	store := memory.Open()
	ids := NewIDGenerator("svc")
	factory := NewServiceFactory(WithIDGenerator(ids))
	services := factory.NewServices(store, nil, []byte("secret"))

	user, err := services.Identity.Bootstrap(context.Background(), application.UserInput{
		Name: "Root", Email: "root@example.com", Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "svc-1", user.ID)
	assert.Equal(t, []string{"svc-1"}, ids.Issued())
	assert.True(t, user.CreatedAt.Equal(factory.Clock.Now()))

	result, err := services.Auth.Login(context.Background(), application.AuthenticateParams{
		Email: "root@example.com", Password: "correct-horse",
	})
	require.NoError(t, err)
	principal, err := services.Auth.ValidateSession(context.Background(), result.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, application.Principal{UserID: "svc-1", IsAdmin: true}, principal)

	factory.Clock.ExpireSessions()
	_, err = services.Auth.ValidateSession(context.Background(), result.Session.Token)
	assert.ErrorIs(t, err, application.ErrUnauthenticated)
}

// TestConcurrentBookingNeverOversellsOnSQLite races many users for the seats
// of one slot through the real SQL booking transaction.
func TestConcurrentBookingNeverOversellsOnSQLite(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}

	ctx := context.Background()
	harness := NewSQLiteHarness(t, time.UTC)
	factory := NewServiceFactory()
	services := factory.NewServices(harness.Store, nil, []byte("secret"))

	admin, err := services.Identity.Bootstrap(ctx, application.UserInput{
		Name: "Root", Email: "root@example.com", Password: "correct-horse",
	})
	require.NoError(t, err)
	adminPrincipal := application.Principal{UserID: admin.ID, IsAdmin: true}

	const capacity = 3
	const contenders = 12
	slot, err := services.Slots.CreateSlot(ctx, application.CreateSlotParams{
		Principal: adminPrincipal,
		Input: application.SlotInput{
			Start:    ReferenceTime().Add(72 * time.Hour),
			End:      ReferenceTime().Add(73 * time.Hour),
			Capacity: capacity,
		},
	})
	require.NoError(t, err)

	principals := make([]application.Principal, contenders)
	for i := range principals {
		user, err := services.Identity.Register(ctx, application.UserInput{
			Name:     "User",
			Email:    fmt.Sprintf("racer-%02d@example.com", i),
			Password: "correct-horse",
		})
		require.NoError(t, err)
		principals[i] = application.Principal{UserID: user.ID}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		full      int
		other     []error
	)
	start := make(chan struct{})
	for _, principal := range principals {
		wg.Add(1)
		go func(p application.Principal) {
			defer wg.Done()
			<-start
			_, err := services.Bookings.BookSlot(ctx, application.BookSlotParams{Principal: p, SlotID: slot.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, application.ErrSlotFull):
				full++
			default:
				other = append(other, err)
			}
		}(principal)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, contenders-capacity, full)

	seats, err := services.Slots.AvailableSeats(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, seats)
}
