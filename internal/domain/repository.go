// Package domain defines the core interfaces and types for FraudGuard.
package domain

import (
	"context"
	"time"
)

// TokenStore is the durable client-side key/value storage.
// All methods require a profile so several consoles can share one database.
type TokenStore interface {
	// Get returns the stored value, or ErrNotFound.
	Get(ctx context.Context, profile string, key string) (string, error)

	// Set stores or replaces a value.
	Set(ctx context.Context, profile string, key string, value string) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, profile string, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for token store initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
