package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"Sideline/internal/core/storage"
	"Sideline/internal/db/migrations"
)

// kvStore implements storage.Store using PostgreSQL
type kvStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewKVStore creates a new PostgreSQL-backed key-value store.
// The kv_store table must exist; see Migrate.
func NewKVStore(db *sql.DB, logger *slog.Logger) storage.Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &kvStore{
		db:     db,
		logger: logger,
	}
}

// Open connects to Postgres and verifies the connection
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded goose migrations
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Get retrieves the value stored under key
func (s *kvStore) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM kv_store WHERE key = $1`

	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query kv_store: %w", err)
	}

	return value, nil
}

// Set upserts the value stored under key
func (s *kvStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key)
		DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write kv_store: %w", err)
	}

	s.logger.Debug("kv stored", "backend", "postgres", "key", key, "bytes", len(value))
	return nil
}

// Remove deletes key
func (s *kvStore) Remove(ctx context.Context, key string) error {
	query := `DELETE FROM kv_store WHERE key = $1`
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete from kv_store: %w", err)
	}
	return nil
}
