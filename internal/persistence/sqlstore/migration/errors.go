package migration

import (
	"errors"
	"fmt"
)

// Sentinels callers can match with errors.Is.
var (
	ErrMigrationFailed      = errors.New("migration: execution failed")
	ErrInvalidMigrationFile = errors.New("migration: invalid file")
	ErrVersionConflict      = errors.New("migration: applied and embedded versions disagree")
	ErrInvalidVersion       = errors.New("migration: invalid version")
	ErrDuplicateVersion     = errors.New("migration: duplicate version")
	// ErrChecksumMismatch means an embedded file was edited after it was applied.
	ErrChecksumMismatch = errors.New("migration: checksum mismatch")
)

// MigrationError ties a failure to one embedded migration file.
type MigrationError struct {
	Version   string
	FilePath  string
	Operation string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("migration %s: %s: %v", e.FilePath, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration %s (%s): %s: %v", e.Version, e.FilePath, e.Operation, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// NewMigrationError builds a MigrationError.
func NewMigrationError(version, filePath, operation string, err error) *MigrationError {
	return &MigrationError{Version: version, FilePath: filePath, Operation: operation, Err: err}
}

// DatabaseError reports a driver failure while applying or tracking
// migrations. Query holds the offending statement when there is one; driver
// errors stay reachable through Unwrap so sqlstore can classify them.
type DatabaseError struct {
	Version   string
	Query     string
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	scope := "schema_migrations"
	if e.Version != "" {
		scope = "migration " + e.Version
	}
	return fmt.Sprintf("%s: %s: %v", scope, e.Operation, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// NewDatabaseError builds a DatabaseError.
func NewDatabaseError(version, query, operation string, err error) *DatabaseError {
	return &DatabaseError{Version: version, Query: query, Operation: operation, Err: err}
}
