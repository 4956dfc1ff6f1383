package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/appointment-booking/internal/notify"
	"github.com/example/appointment-booking/internal/persistence/memory"
)

var testLocation = time.FixedZone("test", 2*60*60)

var fastPasswordParams = PBKDF2Params{Iterations: 1000, SaltLength: 16, KeyLength: 32}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs(prefix string) func() string {
	var counter atomic.Uint64
	return func() string {
		return fmt.Sprintf("%s-%03d", prefix, counter.Add(1))
	}
}

type stubNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (n *stubNotifier) SendConfirmation(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func (n *stubNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.messages...)
}

type testEnv struct {
	store    *memory.Storage
	identity *IdentityService
	slots    *SlotService
	bookings *BookingService
	settings *SettingsService
	notifier *stubNotifier
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.Open()
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, testLocation)
	clock := func() time.Time { return now }
	notifier := &stubNotifier{}
	logger := discardLogger()

	return &testEnv{
		store:    store,
		identity: NewIdentityServiceWithLogger(store, sequentialIDs("user"), clock, logger).WithPasswordParams(fastPasswordParams),
		slots:    NewSlotServiceWithLogger(store, testLocation, sequentialIDs("slot"), clock, logger),
		bookings: NewBookingServiceWithLogger(store, store, store, notifier, sequentialIDs("booking"), clock, logger),
		settings: NewSettingsServiceWithLogger(store, logger),
		notifier: notifier,
		now:      now,
	}
}

func (e *testEnv) createUser(t *testing.T, name string, admin bool) Principal {
	t.Helper()
	user, err := e.identity.CreateUser(context.Background(), CreateUserParams{Input: UserInput{
		Name:     name,
		Email:    name + "@example.com",
		Password: "correct-horse",
		IsAdmin:  admin,
	}})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return Principal{UserID: user.ID, IsAdmin: user.IsAdmin}
}

func (e *testEnv) createSlot(t *testing.T, admin Principal, start time.Time, capacity int) Slot {
	t.Helper()
	slot, err := e.slots.CreateSlot(context.Background(), CreateSlotParams{
		Principal: admin,
		Input:     SlotInput{Start: start, End: start.Add(30 * time.Minute), Capacity: capacity},
	})
	if err != nil {
		t.Fatalf("CreateSlot failed: %v", err)
	}
	return slot
}

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, testLocation)
}
