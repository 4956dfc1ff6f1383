// Package notify delivers booking confirmations over SMTP using settings read at send time.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Setting keys consulted before every send.
const (
	KeySMTPHost  = "smtp_host"
	KeySMTPPort  = "smtp_port"
	KeySMTPUser  = "smtp_user"
	KeySMTPPass  = "smtp_pass"
	KeyFromEmail = "from_email"
)

const defaultDialTimeout = 15 * time.Second

// ErrNotConfigured is returned without dialing when any SMTP setting is blank.
var ErrNotConfigured = errors.New("notify: smtp not configured")

// SettingsSource reads settings with a default for absent keys.
type SettingsSource interface {
	GetSetting(ctx context.Context, key, def string) (string, error)
}

// Event describes a calendar invite attached to a message.
type Event struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Message is one outgoing mail.
type Message struct {
	To      string
	Subject string
	Body    string
	Event   *Event
}

// Config is the SMTP configuration resolved from settings.
type Config struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

type sendFunc func(ctx context.Context, cfg Config, to string, payload []byte) error

// SMTPNotifier sends confirmation mail through an authenticated STARTTLS relay.
type SMTPNotifier struct {
	settings SettingsSource
	send     sendFunc
	now      func() time.Time
	logger   *slog.Logger
}

// NewSMTPNotifier constructs a notifier. If logger is nil, slog.Default is used.
func NewSMTPNotifier(settings SettingsSource, now func() time.Time, logger *slog.Logger) *SMTPNotifier {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{
		settings: settings,
		send:     sendSTARTTLS,
		now:      now,
		logger:   logger.With("component", "notify"),
	}
}

// LoadConfig reads the SMTP settings. It returns ErrNotConfigured when any value is blank.
func (n *SMTPNotifier) LoadConfig(ctx context.Context) (Config, error) {
	if n == nil || n.settings == nil {
		return Config{}, ErrNotConfigured
	}

	values := make(map[string]string, 5)
	var missing []string
	for _, key := range []string{KeySMTPHost, KeySMTPPort, KeySMTPUser, KeySMTPPass, KeyFromEmail} {
		value, err := n.settings.GetSetting(ctx, key, "")
		if err != nil {
			return Config{}, fmt.Errorf("notify: read setting %s: %w", key, err)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = value
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(values[KeySMTPPort])
	if err != nil || port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("%w: invalid %s %q", ErrNotConfigured, KeySMTPPort, values[KeySMTPPort])
	}

	return Config{
		Host: values[KeySMTPHost],
		Port: port,
		User: values[KeySMTPUser],
		Pass: values[KeySMTPPass],
		From: values[KeyFromEmail],
	}, nil
}

// Configured reports whether every SMTP setting is present.
func (n *SMTPNotifier) Configured(ctx context.Context) bool {
	_, err := n.LoadConfig(ctx)
	return err == nil
}

// SendConfirmation delivers msg. Configuration is re-read on every call.
func (n *SMTPNotifier) SendConfirmation(ctx context.Context, msg Message) error {
	cfg, err := n.LoadConfig(ctx)
	if err != nil {
		return err
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("notify: recipient is required")
	}

	payload, err := buildMIME(cfg.From, to, msg, n.now())
	if err != nil {
		return err
	}

	logger := n.logger.With("to", to, "smtp_host", cfg.Host)
	if err := n.send(ctx, cfg, to, payload); err != nil {
		logger.WarnContext(ctx, "confirmation send failed", "error", err)
		return fmt.Errorf("notify: send: %w", err)
	}
	logger.InfoContext(ctx, "confirmation sent")
	return nil
}

func sendSTARTTLS(ctx context.Context, cfg Config, to string, payload []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return errors.New("server does not support STARTTLS")
	}
	if err := client.StartTLS(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if err := client.Auth(smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return client.Quit()
}
