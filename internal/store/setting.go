package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/graciadivina/tiendita/internal/schema"
)

// PutSetting inserts or updates a setting. Settings are keyed by their
// own name; there is no local id.
func (s *Store) PutSetting(ctx context.Context, setting *schema.Setting) error {
	if err := setting.Validate(); err != nil {
		return fmt.Errorf("invalid setting: %w", err)
	}
	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = time.Now()
	}

	query := `
	INSERT INTO settings (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		setting.Key,
		string(setting.Value),
		timeToNullString(setting.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put setting %s: %w", setting.Key, err)
	}
	return nil
}

// GetSetting retrieves a single setting by key.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetSetting(ctx context.Context, key string) (*schema.Setting, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT key, value, updated_at FROM settings WHERE key = ?", key)

	var setting schema.Setting
	var value sql.NullString
	var updatedAt sql.NullString

	if err := row.Scan(&setting.Key, &value, &updatedAt); err != nil {
		return nil, err
	}

	if value.Valid {
		setting.Value = json.RawMessage(value.String)
	}
	setting.UpdatedAt = nullStringToTime(updatedAt)
	return &setting, nil
}

// GetAllSettings retrieves every setting.
func (s *Store) GetAllSettings(ctx context.Context) ([]*schema.Setting, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT key, value, updated_at FROM settings ORDER BY key ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	var settings []*schema.Setting
	for rows.Next() {
		var setting schema.Setting
		var value sql.NullString
		var updatedAt sql.NullString

		if err := rows.Scan(&setting.Key, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}

		if value.Valid {
			setting.Value = json.RawMessage(value.String)
		}
		setting.UpdatedAt = nullStringToTime(updatedAt)
		settings = append(settings, &setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}
	return settings, nil
}
