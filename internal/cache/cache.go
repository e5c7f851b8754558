// Package cache is a small key/value cache with per-entry expiry. It backs
// the inventory snapshots and the HTTP response cache.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache stores opaque values with a time to live.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}
