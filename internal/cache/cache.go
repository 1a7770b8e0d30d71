package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is the key-value contract used for directory lookups.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns ErrMiss when key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value with ttl. A non-positive ttl means no expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// ErrMiss signals a cache miss, as distinct from a transport error.
var ErrMiss = errors.New("cache: miss")
