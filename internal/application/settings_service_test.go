package application

import (
	"context"
	"errors"
	"testing"
)

func TestSettingsService(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("get returns the default until a value is written", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		value, err := env.settings.GetSetting(ctx, SettingSMTPHost, "fallback")
		if err != nil || value != "fallback" {
			t.Fatalf("expected default, got %q, %v", value, err)
		}
		if err := env.settings.SetSetting(ctx, SettingSMTPHost, "smtp.example.com"); err != nil {
			t.Fatalf("SetSetting failed: %v", err)
		}
		if err := env.settings.SetSetting(ctx, SettingSMTPHost, "relay.example.com"); err != nil {
			t.Fatalf("SetSetting failed: %v", err)
		}
		value, err = env.settings.GetSetting(ctx, SettingSMTPHost, "fallback")
		if err != nil || value != "relay.example.com" {
			t.Fatalf("expected latest write, got %q, %v", value, err)
		}
	})

	t.Run("update is limited to administrators and known keys", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		admin := env.createUser(t, "root", true)
		user := env.createUser(t, "bob", false)

		if err := env.settings.UpdateSettings(ctx, user, map[string]string{SettingSMTPHost: "x"}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}

		err := env.settings.UpdateSettings(ctx, admin, map[string]string{"theme": "dark", SettingSMTPPort: "abc"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if len(vErr.FieldErrors) != 2 {
			t.Fatalf("expected 2 field errors, got %+v", vErr.FieldErrors)
		}
	})

	t.Run("password is masked on read and kept when left blank", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		admin := env.createUser(t, "root", true)

		if err := env.settings.UpdateSettings(ctx, admin, map[string]string{
			SettingSMTPHost: "smtp.example.com",
			SettingSMTPPort: "587",
			SettingSMTPPass: "s3cret",
		}); err != nil {
			t.Fatalf("UpdateSettings failed: %v", err)
		}

		listed, err := env.settings.ListSettings(ctx, admin)
		if err != nil {
			t.Fatalf("ListSettings failed: %v", err)
		}
		if listed[SettingSMTPPass] != maskedValue || listed[SettingSMTPHost] != "smtp.example.com" {
			t.Fatalf("unexpected listing %+v", listed)
		}
		if _, ok := listed[SettingFromEmail]; !ok {
			t.Fatal("expected every known key in the listing")
		}

		if err := env.settings.UpdateSettings(ctx, admin, map[string]string{SettingSMTPPass: maskedValue, SettingSMTPUser: "mailer"}); err != nil {
			t.Fatalf("UpdateSettings failed: %v", err)
		}
		stored, err := env.settings.GetSetting(ctx, SettingSMTPPass, "")
		if err != nil || stored != "s3cret" {
			t.Fatalf("expected stored password to be kept, got %q, %v", stored, err)
		}
	})
}
