// Package cache provides the search result cache: a small KV abstraction
// with Redis and in-memory backends, and a result cache layered on top that
// adapts entry lifetime to query popularity.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// KV is the minimal key-value surface the result cache needs. Implementations
// must treat absent keys as ErrCacheMiss, not empty values.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Keys returns keys matching a glob pattern (redis MATCH semantics).
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}
