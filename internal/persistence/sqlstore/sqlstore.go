// Package sqlstore implements the persistence repositories over database/sql
// for SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq).
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/appointment-booking/internal/persistence"
	"github.com/example/appointment-booking/internal/persistence/sqlstore/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config describes how to open a Store.
type Config struct {
	Driver          string
	DSN             string
	Location        *time.Location
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *slog.Logger
}

// Store bundles the SQL repositories behind persistence.Store.
type Store struct {
	*UserRepository
	*SettingRepository
	*SlotRepository
	*BookingRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: database DSN is required")
	}
	if dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dialect, err)
	}

	switch {
	case dialect == DialectSQLite && isSQLiteMemory(dsn):
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", dialect, err)
	}

	return New(db, dialect, cfg.Location, cfg.Logger), nil
}

// New wraps an already opened database handle.
func New(db *sql.DB, dialect Dialect, loc *time.Location, logger *slog.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool := NewConnectionPool(db, dialect)
	return &Store{
		UserRepository:    NewUserRepository(pool, loc),
		SettingRepository: NewSettingRepository(pool),
		SlotRepository:    NewSlotRepository(pool, loc),
		BookingRepository: NewBookingRepository(pool, loc),
		pool:              pool,
		logger:            logger.With("component", "sqlstore", "dialect", string(dialect)),
	}
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("sqlstore: load migrations: %w", err)
	}
	manager := migration.NewManager(
		migration.NewScanner(files),
		migration.NewExecutor(s.pool.DB(), s.pool.dialect.Rebind),
		s.logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Dialect reports the backend in use.
func (s *Store) Dialect() Dialect {
	return s.pool.dialect
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// sqliteDSN adds the pragmas the booking transaction relies on: a busy
// timeout, enforced foreign keys, BEGIN IMMEDIATE and WAL for file databases.
func sqliteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if !strings.Contains(dsn, "foreign_keys") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "journal_mode") && !isSQLiteMemory(dsn) {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	if !strings.Contains(dsn, "_txlock") {
		params = append(params, "_txlock=immediate")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func isSQLiteMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
