package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/appointment-booking/internal/application"
	"github.com/example/appointment-booking/internal/persistence"
)

// FastPasswordParams keeps credential derivation cheap in tests.
var FastPasswordParams = application.PBKDF2Params{Iterations: 1000, SaltLength: 16, KeyLength: 32}

// SessionTTL is the lifetime of tokens issued by factory-built auth services.
const SessionTTL = time.Hour

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. Logs are
// discarded unless WithLogger is supplied.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = time.UTC
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation overrides the service location.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// WithLogger overrides the logger handed to services.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Services bundles the application services built over one store.
type Services struct {
	Identity *application.IdentityService
	Auth     *application.AuthService
	Slots    *application.SlotService
	Bookings *application.BookingService
	Settings *application.SettingsService
}

// NewServices builds every service over store. A nil notifier is allowed;
// bookings then skip confirmation mail.
func (f *ServiceFactory) NewServices(store persistence.Store, notifier application.ConfirmationNotifier, secret []byte) Services {
	idGen := f.IDGenerator.NextFunc()
	now := f.Clock.NowFunc()

	identity := application.NewIdentityServiceWithLogger(store, idGen, now, f.Logger).WithPasswordParams(FastPasswordParams)
	return Services{
		Identity: identity,
		Auth:     application.NewAuthServiceWithLogger(identity, secret, now, SessionTTL, f.Logger),
		Slots:    application.NewSlotServiceWithLogger(store, f.Location, idGen, now, f.Logger),
		Bookings: application.NewBookingServiceWithLogger(store, store, store, notifier, idGen, now, f.Logger),
		Settings: application.NewSettingsServiceWithLogger(store, f.Logger),
	}
}
