// Package settings persists per-provider state across restarts, so a
// provider the user disabled stays disabled.
package settings

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS provider_settings (
	name       TEXT PRIMARY KEY,
	enabled    INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create settings schema: %w", err)
	}

	logger.Info("Settings store opened", zap.String("path", path))

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// All returns the persisted enabled flag for every provider that has one.
// Providers without a row have never been toggled by the user.
func (s *Store) All(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, enabled FROM provider_settings")
	if err != nil {
		return nil, fmt.Errorf("failed to read provider settings: %w", err)
	}
	defer rows.Close()

	states := make(map[string]bool)
	for rows.Next() {
		var name string
		var enabled bool
		if err := rows.Scan(&name, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan provider setting: %w", err)
		}
		states[name] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provider settings: %w", err)
	}

	return states, nil
}

func (s *Store) SetEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_settings (name, enabled) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = CURRENT_TIMESTAMP`,
		name, enabled)
	if err != nil {
		return fmt.Errorf("failed to persist provider setting: %w", err)
	}

	s.logger.Info("Provider setting persisted",
		zap.String("provider", name),
		zap.Bool("enabled", enabled))

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
