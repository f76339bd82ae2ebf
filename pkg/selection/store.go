package selection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load for a name that was never saved, was
// deleted, expired, or was saved empty.
var ErrNotFound = errors.New("selection not found")

const keyPrefix = "plexdate:selection:"

// RedisStore persists named selections so several CLI invocations can build
// one selection. Each selection is a list of ids plus a hash of titles.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a store. A ttl of 0 keeps selections until deleted.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient, ttl: ttl}
}

func idsKey(name string) string    { return keyPrefix + name }
func titlesKey(name string) string { return keyPrefix + name + ":titles" }

// Save replaces the stored selection name with s.
func (r *RedisStore) Save(ctx context.Context, name string, s *Set) error {
	if name == "" {
		return fmt.Errorf("selection name is required")
	}

	ids := s.Snapshot()
	titles := s.Titles()

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, idsKey(name), titlesKey(name))
		if len(ids) == 0 {
			return nil
		}

		values := make([]interface{}, len(ids))
		for i, id := range ids {
			values[i] = strconv.FormatInt(id, 10)
		}
		pipe.RPush(ctx, idsKey(name), values...)

		if len(titles) > 0 {
			fields := make(map[string]interface{}, len(titles))
			for id, title := range titles {
				fields[strconv.FormatInt(id, 10)] = title
			}
			pipe.HSet(ctx, titlesKey(name), fields)
		}

		if r.ttl > 0 {
			pipe.Expire(ctx, idsKey(name), r.ttl)
			pipe.Expire(ctx, titlesKey(name), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save selection %q: %w", name, err)
	}
	return nil
}

// Load returns the stored selection name.
func (r *RedisStore) Load(ctx context.Context, name string) (*Set, error) {
	raw, err := r.redis.LRange(ctx, idsKey(name), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load selection %q: %w", name, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}

	titles, err := r.redis.HGetAll(ctx, titlesKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("load selection %q titles: %w", name, err)
	}

	s := New()
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("load selection %q: bad id %q: %w", name, v, err)
		}
		s.Add(id)
	}
	for k, title := range titles {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil || !s.Contains(id) {
			continue
		}
		s.AddItem(library.Item{ID: id, Title: title})
	}
	return s, nil
}

// Delete removes the stored selection name. Deleting a missing name is not
// an error.
func (r *RedisStore) Delete(ctx context.Context, name string) error {
	if err := r.redis.Del(ctx, idsKey(name), titlesKey(name)).Err(); err != nil {
		return fmt.Errorf("delete selection %q: %w", name, err)
	}
	return nil
}
