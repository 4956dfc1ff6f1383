// Package config loads service configuration from the environment, an
// optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvHTTPPort        = "BOOKING_HTTP_PORT"
	EnvDatabaseDriver  = "BOOKING_DATABASE_DRIVER"
	EnvDatabaseDSN     = "BOOKING_DATABASE_DSN"
	EnvSessionSecret   = "BOOKING_SESSION_SECRET"
	EnvSessionTTL      = "BOOKING_SESSION_TTL"
	EnvTimezone        = "BOOKING_TIMEZONE"
	EnvLogLevel        = "BOOKING_LOG_LEVEL"
	EnvLogFormat       = "BOOKING_LOG_FORMAT"
	EnvDigestSchedule  = "BOOKING_DIGEST_SCHEDULE"
	EnvDigestRecipient = "BOOKING_DIGEST_RECIPIENT"
	EnvUpcomingDays    = "BOOKING_UPCOMING_DAYS"
	EnvCORSOrigins     = "BOOKING_CORS_ORIGINS"
	EnvConfigFile      = "BOOKING_CONFIG_FILE"
	EnvDotEnvFile      = "BOOKING_ENV_FILE"
)

// Config captures the configuration values of the booking service.
type Config struct {
	HTTPPort        int
	DatabaseDriver  string
	DatabaseDSN     string
	SessionSecret   string
	SessionTTL      time.Duration
	Timezone        string
	Location        *time.Location
	LogLevel        string
	LogFormat       string
	DigestSchedule  string
	DigestRecipient string
	UpcomingDays    int
	CORSOrigins     []string
}

// fileConfig mirrors Config in the optional YAML file. Environment values win.
type fileConfig struct {
	HTTPPort string `yaml:"http_port"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Session struct {
		Secret string `yaml:"secret"`
		TTL    string `yaml:"ttl"`
	} `yaml:"session"`
	Timezone string `yaml:"timezone"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Digest struct {
		Schedule  string `yaml:"schedule"`
		Recipient string `yaml:"recipient"`
	} `yaml:"digest"`
	UpcomingDays string `yaml:"upcoming_days"`
	CORSOrigins  string `yaml:"cors_origins"`
}

func (f fileConfig) values() map[string]string {
	return map[string]string{
		EnvHTTPPort:        f.HTTPPort,
		EnvDatabaseDriver:  f.Database.Driver,
		EnvDatabaseDSN:     f.Database.DSN,
		EnvSessionSecret:   f.Session.Secret,
		EnvSessionTTL:      f.Session.TTL,
		EnvTimezone:        f.Timezone,
		EnvLogLevel:        f.Log.Level,
		EnvLogFormat:       f.Log.Format,
		EnvDigestSchedule:  f.Digest.Schedule,
		EnvDigestRecipient: f.Digest.Recipient,
		EnvUpcomingDays:    f.UpcomingDays,
		EnvCORSOrigins:     f.CORSOrigins,
	}
}

// Load preloads the .env file named by BOOKING_ENV_FILE (default .env) when
// present, then parses configuration from the process environment overlaid
// on the YAML file named by BOOKING_CONFIG_FILE.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv(EnvDotEnvFile))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	var file map[string]string
	if path := strings.TrimSpace(os.Getenv(EnvConfigFile)); path != "" {
		var err error
		if file, err = readFile(path); err != nil {
			return Config{}, err
		}
	}

	return parse(func(key string) string {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
		return strings.TrimSpace(file[key])
	})
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fc.values(), nil
}

// parse applies defaults, validates values and aggregates missing and invalid keys.
func parse(lookup func(string) string) (Config, error) {
	cfg := Config{
		HTTPPort:       8080,
		DatabaseDriver: "sqlite",
		DatabaseDSN:    "file:booking.db",
		SessionTTL:     24 * time.Hour,
		Timezone:       "Local",
		Location:       time.Local,
		LogLevel:       "info",
		LogFormat:      "json",
		UpcomingDays:   7,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if portValue := lookup(EnvHTTPPort); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, EnvHTTPPort)
		} else {
			cfg.HTTPPort = port
		}
	}

	if driver := strings.ToLower(lookup(EnvDatabaseDriver)); driver != "" {
		switch driver {
		case "sqlite", "postgres":
			cfg.DatabaseDriver = driver
		default:
			invalid = append(invalid, EnvDatabaseDriver)
		}
	}

	if dsn := lookup(EnvDatabaseDSN); dsn != "" {
		cfg.DatabaseDSN = dsn
	} else if cfg.DatabaseDriver == "postgres" {
		missing = append(missing, EnvDatabaseDSN)
	}

	if secret := lookup(EnvSessionSecret); secret == "" {
		missing = append(missing, EnvSessionSecret)
	} else {
		cfg.SessionSecret = secret
	}

	if ttlValue := lookup(EnvSessionTTL); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, EnvSessionTTL)
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if tz := lookup(EnvTimezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, EnvTimezone)
		} else {
			cfg.Timezone = tz
			cfg.Location = loc
		}
	}

	if level := strings.ToLower(lookup(EnvLogLevel)); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = level
		default:
			invalid = append(invalid, EnvLogLevel)
		}
	}

	if format := strings.ToLower(lookup(EnvLogFormat)); format != "" {
		switch format {
		case "json", "text":
			cfg.LogFormat = format
		default:
			invalid = append(invalid, EnvLogFormat)
		}
	}

	cfg.DigestSchedule = lookup(EnvDigestSchedule)
	cfg.DigestRecipient = lookup(EnvDigestRecipient)

	if daysValue := lookup(EnvUpcomingDays); daysValue != "" {
		days, err := strconv.Atoi(daysValue)
		if err != nil || days <= 0 || days > 366 {
			invalid = append(invalid, EnvUpcomingDays)
		} else {
			cfg.UpcomingDays = days
		}
	}

	for _, origin := range strings.Split(lookup(EnvCORSOrigins), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required configuration is missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("configuration values are invalid: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
