// Package cache provides a small key-value cache used to memoize embeddings.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss signals that the key is absent. Transport failures are returned as-is.
var ErrMiss = errors.New("cache: miss")

// Cache is a string key-value store with per-entry TTL. Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value; a non-positive ttl means no expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Close() error
}
