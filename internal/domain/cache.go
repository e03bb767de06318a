package domain

import (
	"context"
	"time"
)

// Cache memoises rendered artifacts (chart images).
// Supports a local LRU, Redis, or both in two phases.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, profile string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, profile string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, profile string, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// If true, check local first, then Redis
	EnableTwoPhase bool
}
