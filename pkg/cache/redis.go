package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore handles caching operations with Redis backend.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a new cache store with Redis backend.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (s *RedisStore) Get(ctx context.Context, key CacheKey) (*Entry, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues("redis").Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry is second-granular, re-check against our own clock
	if entry.IsExpired() {
		_ = s.redis.Del(ctx, key.String()).Err()
		CacheMisses.WithLabelValues("redis").Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// The entry will be automatically removed from Redis when it expires.
func (s *RedisStore) Set(ctx context.Context, key CacheKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// DeletePrefix removes every key under prefix using SCAN, so large
// keyspaces are never blocked by KEYS.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	iter := s.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := s.redis.Del(ctx, batch...).Err(); err != nil {
				CacheErrors.WithLabelValues("delete").Inc()
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis scan: %w", err)
	}

	if len(batch) > 0 {
		if err := s.redis.Del(ctx, batch...).Err(); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}
