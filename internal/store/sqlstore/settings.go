package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns the value of key and whether it exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.queryRow(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlstore: get setting %s: %w", key, err)
	}
	return v, true, nil
}

// SetSetting upserts key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, unix(s.now()))
	if err != nil {
		return fmt.Errorf("sqlstore: set setting %s: %w", key, err)
	}
	return nil
}
