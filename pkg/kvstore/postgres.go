package kvstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sitekit/search-assistant/pkg/postgres"
)

// PostgresStore persists settings in the settings table (see schema.sql).
type PostgresStore struct {
	db *postgres.Client
}

// NewPostgresStore creates a settings store over an existing connection pool.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the value for key, or "" when the key has never been set.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the value for key.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}
