package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/appointment-booking/internal/application"
	"github.com/example/appointment-booking/internal/config"
	"github.com/example/appointment-booking/internal/digest"
	httptransport "github.com/example/appointment-booking/internal/http"
	"github.com/example/appointment-booking/internal/logging"
	"github.com/example/appointment-booking/internal/notify"
	"github.com/example/appointment-booking/internal/persistence"
	"github.com/example/appointment-booking/internal/persistence/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("booking service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	app := newApp(cfg, store, uuid.NewString, time.Now, os.Stderr, logger)
	if app.digest != nil {
		if err := app.digest.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := app.digest.Stop(stopCtx); err != nil {
				logger.Error("failed to stop digest job", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("booking API listening", "addr", server.Addr, "driver", cfg.DatabaseDriver, "timezone", cfg.Timezone)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlstore.Store, error) {
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:   cfg.DatabaseDriver,
		DSN:      cfg.DatabaseDSN,
		Location: cfg.Location,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

type app struct {
	handler http.Handler
	digest  *digest.Job
}

// newApp wires services and handlers over store. The digest job is nil
// unless a schedule is configured.
func newApp(cfg config.Config, store persistence.Store, idGenerator func() string, now func() time.Time, accessLog io.Writer, logger *slog.Logger) *app {
	settingsService := application.NewSettingsServiceWithLogger(store, logger)
	notifier := notify.NewSMTPNotifier(settingsService, now, logger)

	identityService := application.NewIdentityServiceWithLogger(store, idGenerator, now, logger)
	authService := application.NewAuthServiceWithLogger(identityService, []byte(cfg.SessionSecret), now, cfg.SessionTTL, logger)
	slotService := application.NewSlotServiceWithLogger(store, cfg.Location, idGenerator, now, logger)
	bookingService := application.NewBookingServiceWithLogger(store, store, store, notifier, idGenerator, now, logger)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:           httptransport.NewAuthHandler(authService, identityService, logger),
		Slots:          httptransport.NewSlotHandler(slotService, cfg.Location, cfg.UpcomingDays, now, logger),
		Bookings:       httptransport.NewBookingHandler(bookingService, cfg.Location, now, logger),
		Settings:       httptransport.NewSettingsHandler(settingsService, logger),
		Sessions:       authService,
		Setup:          identityService,
		AccessLog:      accessLog,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
	})

	out := &app{handler: handler}
	if cfg.DigestSchedule != "" {
		out.digest = digest.NewJob(digest.Config{
			Schedule:  cfg.DigestSchedule,
			Recipient: cfg.DigestRecipient,
			Location:  cfg.Location,
		}, bookingService, notifier, settingsService, now, logger)
	}
	return out
}
