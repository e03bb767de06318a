// Package repository provides the durable client store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Re-exported so callers can match on repository errors directly.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.TokenStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured database and runs migrations.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo, err := NewWithDB(db, cfg.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewWithDB wraps an existing connection and runs migrations.
func NewWithDB(db *sql.DB, driver string) (*SQLRepository, error) {
	repo := &SQLRepository{db: db, driver: driver}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value stored under (profile, key).
func (r *SQLRepository) Get(ctx context.Context, profile string, key string) (string, error) {
	if err := checkScope(profile, key); err != nil {
		return "", err
	}

	query := `SELECT value FROM client_storage WHERE profile = ? AND name = ?`

	var value string
	err := r.db.QueryRowContext(ctx, r.rebind(query), profile, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores value under (profile, key), replacing any previous value.
// Concurrent writers are last-write-wins.
func (r *SQLRepository) Set(ctx context.Context, profile string, key string, value string) error {
	if err := checkScope(profile, key); err != nil {
		return err
	}

	query := `
		INSERT INTO client_storage (profile, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(profile, name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), profile, key, value, time.Now().UTC())
	return err
}

// Delete removes (profile, key). Missing rows are not an error.
func (r *SQLRepository) Delete(ctx context.Context, profile string, key string) error {
	if err := checkScope(profile, key); err != nil {
		return err
	}

	query := `DELETE FROM client_storage WHERE profile = ? AND name = ?`
	_, err := r.db.ExecContext(ctx, r.rebind(query), profile, key)
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func checkScope(profile, key string) error {
	if profile == "" {
		return fmt.Errorf("%w: profile is required", ErrInvalidInput)
	}
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	return nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	result := make([]byte, 0, len(query)+8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			result = append(result, query[i])
			continue
		}
		result = append(result, '$')
		result = strconv.AppendInt(result, int64(n), 10)
		n++
	}
	return string(result)
}
