// Package migration applies versioned SQL migrations to the booking database.
//
// Migration files are read from an fs.FS (normally the embedded migrations
// directory) and follow the naming convention {version}_{description}.sql,
// e.g. "001_create_users.sql". Each file runs inside its own transaction and
// is recorded in the schema_migrations table so it is never applied twice.
//
// Example usage:
//
//	manager := NewManager(NewScanner(files), NewExecutor(db, rebind), logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
