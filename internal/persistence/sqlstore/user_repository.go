package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/appointment-booking/internal/persistence"
)

// UserRepository implements persistence.UserRepository over database/sql.
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	loc    *time.Location
}

// NewUserRepository creates a user repository.
func NewUserRepository(pool *ConnectionPool, loc *time.Location) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		loc:    loc,
	}
}

// CreateUser inserts a new user. Email uniqueness is case-insensitive.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	if _, err := r.helper.Exec(ctx, insertUserSQL, r.insertArgs(user)...); err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// CreateFirstUser inserts user only while the users table is empty. Postgres
// takes a self-conflicting table lock before counting; SQLite already holds
// the database write lock from BEGIN IMMEDIATE.
func (r *UserRepository) CreateFirstUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if r.pool.dialect == DialectPostgres {
			if _, err := tx.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
				return r.mapper.MapError(err)
			}
		}

		var count int
		if err := r.helper.QueryRowTx(ctx, tx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
			return r.mapper.MapError(err)
		}
		if count > 0 {
			return persistence.ErrUsersExist
		}

		if _, err := r.helper.ExecTx(ctx, tx, insertUserSQL, r.insertArgs(user)...); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

const insertUserSQL = `
		INSERT INTO users (id, name, email, salt, pw_hash, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

func (r *UserRepository) insertArgs(user persistence.User) []any {
	return []any{
		user.ID,
		user.Name,
		normalizeEmail(user.Email),
		user.Salt,
		user.PasswordHash,
		user.IsAdmin,
		persistence.FormatTimestamp(user.CreatedAt, r.loc),
	}
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	query := `
		SELECT id, name, email, salt, pw_hash, is_admin, created_at
		FROM users
		WHERE id = ?
	`
	return r.scanUser(r.helper.QueryRow(ctx, query, id))
}

// GetUserByEmail retrieves a user by normalized email address.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	query := `
		SELECT id, name, email, salt, pw_hash, is_admin, created_at
		FROM users
		WHERE email = ?
	`
	return r.scanUser(r.helper.QueryRow(ctx, query, normalized))
}

// CountUsers returns the number of accounts.
func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

func (r *UserRepository) scanUser(row *sql.Row) (persistence.User, error) {
	var user persistence.User
	var createdAt string
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Salt,
		&user.PasswordHash,
		&user.IsAdmin,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, r.mapper.MapError(err)
	}
	if user.CreatedAt, err = persistence.ParseTimestamp(createdAt, r.loc); err != nil {
		return persistence.User{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return user, nil
}

// normalizeEmail normalizes email addresses for consistent storage and lookup
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
