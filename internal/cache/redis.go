package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements domain.Cache on Redis so several console
// replicas share rendered charts.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing client without pinging it.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the value or nil on miss.
func (c *RedisCache) Get(ctx context.Context, profile string, key string) ([]byte, error) {
	fullKey, err := c.key(profile, key)
	if err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores value with ttl.
func (c *RedisCache) Set(ctx context.Context, profile string, key string, value []byte, ttl time.Duration) error {
	fullKey, err := c.key(profile, key)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value.
func (c *RedisCache) Delete(ctx context.Context, profile string, key string) error {
	fullKey, err := c.key(profile, key)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, fullKey).Err()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(profile, key string) (string, error) {
	scoped, err := scopedKey(profile, key)
	if err != nil {
		return "", err
	}
	return "fraudguard:" + scoped, nil
}
