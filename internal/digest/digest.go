// Package digest mails a daily summary of the next day's bookings on a cron schedule.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/appointment-booking/internal/application"
	"github.com/example/appointment-booking/internal/notify"
)

const runTimeout = time.Minute

// systemPrincipal lists bookings across every administrator.
var systemPrincipal = application.Principal{UserID: "digest", IsAdmin: true}

// BookingLister returns bookings for a scope and range.
type BookingLister interface {
	ListBookings(ctx context.Context, params application.ListBookingsParams) ([]application.Booking, error)
}

// Sender delivers a message.
type Sender interface {
	SendConfirmation(ctx context.Context, msg notify.Message) error
}

// SettingsReader resolves the fallback recipient.
type SettingsReader interface {
	GetSetting(ctx context.Context, key, def string) (string, error)
}

// Config controls the digest job.
type Config struct {
	// Schedule is a standard five field cron expression.
	Schedule string
	// Recipient overrides the from_email setting.
	Recipient string
	Location  *time.Location
}

// Job builds and sends the digest.
type Job struct {
	cfg      Config
	bookings BookingLister
	sender   Sender
	settings SettingsReader
	now      func() time.Time
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJob constructs a digest job. If logger is nil, slog.Default is used.
func NewJob(cfg Config, bookings BookingLister, sender Sender, settings SettingsReader, now func() time.Time, logger *slog.Logger) *Job {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		cfg:      cfg,
		bookings: bookings,
		sender:   sender,
		settings: settings,
		now:      now,
		logger:   logger.With("component", "digest"),
	}
}

// Start registers the job with a cron scheduler and starts it.
func (j *Job) Start() error {
	if j.cron != nil {
		return errors.New("digest: already started")
	}
	c := cron.New(cron.WithLocation(j.cfg.Location))
	if _, err := c.AddFunc(j.cfg.Schedule, j.tick); err != nil {
		return fmt.Errorf("digest: invalid schedule %q: %w", j.cfg.Schedule, err)
	}
	c.Start()
	j.cron = c
	j.logger.Info("digest scheduled", "schedule", j.cfg.Schedule)
	return nil
}

// Stop halts the scheduler and waits for a running job or ctx, whichever ends first.
func (j *Job) Stop(ctx context.Context) error {
	if j.cron == nil {
		return nil
	}
	done := j.cron.Stop()
	j.cron = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if err := j.Run(ctx); err != nil {
		j.logger.ErrorContext(ctx, "digest run failed", "error", err)
	}
}

// Run sends the summary of tomorrow's active bookings. It is a no-op when
// there is nothing to report, no recipient, or SMTP is not configured.
func (j *Job) Run(ctx context.Context) error {
	now := j.now().In(j.cfg.Location)
	y, m, d := now.Date()
	from := time.Date(y, m, d+1, 0, 0, 0, 0, j.cfg.Location)
	until := from.AddDate(0, 0, 1)

	bookings, err := j.bookings.ListBookings(ctx, application.ListBookingsParams{
		Principal: systemPrincipal,
		Scope:     application.BookingScopeAll,
		Status:    application.BookingStatusBooked,
		From:      &from,
		Until:     &until,
	})
	if err != nil {
		return fmt.Errorf("digest: list bookings: %w", err)
	}
	logger := j.logger.With("date", from.Format(time.DateOnly), "bookings", len(bookings))
	if len(bookings) == 0 {
		logger.DebugContext(ctx, "no bookings to report")
		return nil
	}

	recipient, err := j.recipient(ctx)
	if err != nil {
		return err
	}
	if recipient == "" {
		logger.DebugContext(ctx, "digest recipient not configured")
		return nil
	}

	err = j.sender.SendConfirmation(ctx, notify.Message{
		To:      recipient,
		Subject: fmt.Sprintf("Bookings for %s (%d)", from.Format(time.DateOnly), len(bookings)),
		Body:    Summary(from, bookings),
	})
	switch {
	case err == nil:
		logger.InfoContext(ctx, "digest sent", "to", recipient)
		return nil
	case errors.Is(err, notify.ErrNotConfigured):
		return nil
	default:
		return fmt.Errorf("digest: send: %w", err)
	}
}

func (j *Job) recipient(ctx context.Context) (string, error) {
	if r := strings.TrimSpace(j.cfg.Recipient); r != "" {
		return r, nil
	}
	if j.settings == nil {
		return "", nil
	}
	r, err := j.settings.GetSetting(ctx, notify.KeyFromEmail, "")
	if err != nil {
		return "", fmt.Errorf("digest: read recipient: %w", err)
	}
	return strings.TrimSpace(r), nil
}

// Summary renders the plain text digest body.
func Summary(day time.Time, bookings []application.Booking) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bookings for %s\n\n", day.Format("Monday, 2006-01-02"))
	for _, booking := range bookings {
		fmt.Fprintf(&b, "%s-%s  %s <%s>", booking.SlotStart.Format("15:04"), booking.SlotEnd.Format("15:04"), booking.Contact.Name, booking.Contact.Email)
		if booking.Contact.Phone != "" {
			fmt.Fprintf(&b, "  %s", booking.Contact.Phone)
		}
		b.WriteString("\n")
		if booking.Contact.Notes != "" {
			fmt.Fprintf(&b, "    %s\n", booking.Contact.Notes)
		}
	}
	return b.String()
}
