// Package cache implements the shared cache collaborator of spec §2: an
// opaque key/value store, resolved from the environment and assumed
// thread-safe by contract (spec §5). Backed by Redis, the way
// internal/platform/redis.go connects it for the rest of the repo.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when key has no value.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the opaque key/value store handle (spec §2, §5). Values are
// stored and returned as opaque bytes; it is the caller's job to encode
// whatever structure (existence-cache entries, mime lookups) they need.
type Cache struct {
	client *redis.Client
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the value for key, or ErrNotFound if absent.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %q: %w", key, err)
	}
	return val, nil
}

// Set stores value for key with the given TTL. A zero ttl means no
// expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Delete removes key, if present.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}
