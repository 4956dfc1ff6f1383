package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/appointment-booking/internal/persistence"
)

// SettingRepository implements persistence.SettingRepository.
type SettingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSettingRepository creates a settings repository.
func NewSettingRepository(pool *ConnectionPool) *SettingRepository {
	return &SettingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// UpsertSetting inserts or replaces the value for key.
func (r *SettingRepository) UpsertSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return persistence.ErrConstraintViolation
	}
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`
	if _, err := r.helper.Exec(ctx, query, key, value); err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetSetting returns the stored value for key or persistence.ErrNotFound.
func (r *SettingRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.helper.QueryRow(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", persistence.ErrNotFound
		}
		return "", r.mapper.MapError(err)
	}
	return value, nil
}

// ListSettings returns every setting ordered by key.
func (r *SettingRepository) ListSettings(ctx context.Context) ([]persistence.Setting, error) {
	rows, err := r.helper.Query(ctx, `SELECT key, value FROM settings ORDER BY key ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	settings := make([]persistence.Setting, 0)
	for rows.Next() {
		var setting persistence.Setting
		if err := rows.Scan(&setting.Key, &setting.Value); err != nil {
			return nil, r.mapper.MapError(err)
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return settings, nil
}
