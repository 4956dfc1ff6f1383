package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/example/appointment-booking/internal/notify"
	"github.com/example/appointment-booking/internal/persistence"
)

// Known setting keys.
const (
	SettingSMTPHost  = notify.KeySMTPHost
	SettingSMTPPort  = notify.KeySMTPPort
	SettingSMTPUser  = notify.KeySMTPUser
	SettingSMTPPass  = notify.KeySMTPPass
	SettingFromEmail = notify.KeyFromEmail
)

const maskedValue = "********"

var knownSettings = map[string]struct{}{
	SettingSMTPHost:  {},
	SettingSMTPPort:  {},
	SettingSMTPUser:  {},
	SettingSMTPPass:  {},
	SettingFromEmail: {},
}

// SettingsService reads and writes key/value settings. Reads always hit the store.
type SettingsService struct {
	settings persistence.SettingRepository
	logger   *slog.Logger
}

// NewSettingsService constructs a settings service.
func NewSettingsService(settings persistence.SettingRepository) *SettingsService {
	return NewSettingsServiceWithLogger(settings, nil)
}

// NewSettingsServiceWithLogger constructs a settings service with a specified logger.
func NewSettingsServiceWithLogger(settings persistence.SettingRepository, logger *slog.Logger) *SettingsService {
	return &SettingsService{settings: settings, logger: defaultLogger(logger)}
}

func (s *SettingsService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SettingsService", operation, attrs...)
}

// SetSetting upserts a value.
func (s *SettingsService) SetSetting(ctx context.Context, key, value string) error {
	if s == nil || s.settings == nil {
		return fmt.Errorf("setting repository not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		vErr := &ValidationError{}
		vErr.add("key", "key is required")
		return vErr
	}
	return s.settings.UpsertSetting(ctx, key, value)
}

// GetSetting returns the stored value or def when the key is absent.
func (s *SettingsService) GetSetting(ctx context.Context, key, def string) (string, error) {
	if s == nil || s.settings == nil {
		return def, fmt.Errorf("setting repository not configured")
	}
	value, err := s.settings.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return def, nil
		}
		return def, err
	}
	return value, nil
}

// UpdateSettings writes known keys for administrators. A blank smtp_pass keeps the stored password.
func (s *SettingsService) UpdateSettings(ctx context.Context, principal Principal, values map[string]string) (err error) {
	if s == nil || s.settings == nil {
		return fmt.Errorf("setting repository not configured")
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	logger := s.loggerWith(ctx, "UpdateSettings", "principal_id", principal.UserID, "keys", keys)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update settings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "settings updated")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	for _, key := range keys {
		if _, ok := knownSettings[key]; !ok {
			vErr.add(key, "unknown setting")
			continue
		}
		value := strings.TrimSpace(values[key])
		if key == SettingSMTPPort && value != "" {
			if port, convErr := strconv.Atoi(value); convErr != nil || port <= 0 || port > 65535 {
				vErr.add(key, "smtp_port must be a port number")
			}
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	for _, key := range keys {
		value := strings.TrimSpace(values[key])
		if key == SettingSMTPPass && (value == "" || value == maskedValue) {
			continue
		}
		if err = s.settings.UpsertSetting(ctx, key, value); err != nil {
			return
		}
	}
	return
}

// ListSettings returns every known setting for administrators with the SMTP password masked.
func (s *SettingsService) ListSettings(ctx context.Context, principal Principal) (map[string]string, error) {
	if s == nil || s.settings == nil {
		return nil, fmt.Errorf("setting repository not configured")
	}
	if !principal.IsAdmin {
		return nil, ErrUnauthorized
	}

	stored, err := s.settings.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(knownSettings))
	for key := range knownSettings {
		out[key] = ""
	}
	for _, setting := range stored {
		out[setting.Key] = setting.Value
	}
	if out[SettingSMTPPass] != "" {
		out[SettingSMTPPass] = maskedValue
	}
	return out, nil
}
