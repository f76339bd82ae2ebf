package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips when none is
// running. The integration build tag runs the same checks against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil)
}

func TestRedisStore(t *testing.T) {
	exerciseRedisStore(t, setupTestRedis(t))
}

func exerciseRedisStore(t *testing.T, client *redis.Client) {
	t.Helper()
	ctx := context.Background()
	store := NewRedisStore(client)

	t.Run("miss", func(t *testing.T) {
		if _, err := store.Get(ctx, pageKey("1", "0")); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get() error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("set and get", func(t *testing.T) {
		key := pageKey("1", "0")
		if err := store.Set(ctx, key, NewEntry([]byte(`{"size":3}`), time.Minute)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		got, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got.Data) != `{"size":3}` {
			t.Errorf("Data = %q", got.Data)
		}

		ttl, err := client.TTL(ctx, key.String()).Result()
		if err != nil {
			t.Fatalf("TTL() error = %v", err)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Errorf("redis TTL = %v, want (0, 1m]", ttl)
		}
	})

	t.Run("corrupted entry", func(t *testing.T) {
		key := pageKey("2", "0")
		client.Set(ctx, key.String(), "not json", time.Minute)

		if _, err := store.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
		}
	})

	t.Run("delete prefix", func(t *testing.T) {
		for _, key := range []CacheKey{pageKey("3", "0"), pageKey("3", "100"), pageKey("30", "0")} {
			if err := store.Set(ctx, key, NewEntry([]byte("x"), time.Minute)); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
		}

		if err := store.DeletePrefix(ctx, CacheKey{Endpoint: "/library/sections/3/all"}.Prefix()); err != nil {
			t.Fatalf("DeletePrefix() error = %v", err)
		}

		if _, err := store.Get(ctx, pageKey("3", "0")); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("section 3 page survived: %v", err)
		}
		if _, err := store.Get(ctx, pageKey("30", "0")); err != nil {
			t.Errorf("section 30 page should survive: %v", err)
		}
	})
}
