package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// GetSetting returns the stored value or "" if missing.
func (d *DB) GetSetting(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}

	var v string
	err := d.Pool.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key = ? LIMIT 1;`, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key is empty")
	}

	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO app_settings(key, value, updated_at)
VALUES(?,?,?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, key, value, formatTS(d.now()))
	return err
}
