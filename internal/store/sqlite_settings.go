package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting retrieves a settings value by name. Cursor positions and other
// per-stream bookkeeping live here as versioned JSON documents.
func (s *SQLiteStore) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE name = ?
	`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a settings value.
func (s *SQLiteStore) SetSetting(ctx context.Context, name, value string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO settings (name, value) VALUES (?, ?)
		`, name, value)
		if err != nil {
			return fmt.Errorf("set setting %s: %w", name, err)
		}
		return nil
	})
}

// DeleteSetting removes a settings value. Deleting an absent name is a no-op.
func (s *SQLiteStore) DeleteSetting(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE name = ?`, name); err != nil {
			return fmt.Errorf("delete setting %s: %w", name, err)
		}
		return nil
	})
}
