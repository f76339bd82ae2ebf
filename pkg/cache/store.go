package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a TTL-bounded key to Entry store.
type Store interface {
	// Get returns ErrCacheMiss for absent or expired keys.
	Get(ctx context.Context, key CacheKey) (*Entry, error)

	// Set stores entry until entry.Expires. Expired entries are ignored.
	Set(ctx context.Context, key CacheKey, entry *Entry) error

	// DeletePrefix removes every key whose string form starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}
