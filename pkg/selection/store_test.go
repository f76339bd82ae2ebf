package selection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   14,
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

func TestRedisStore(t *testing.T) {
	exerciseRedisStore(t, setupTestRedis(t))
}

func exerciseRedisStore(t *testing.T, client *redis.Client) {
	t.Helper()
	ctx := context.Background()
	store := NewRedisStore(client, time.Hour)

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}

	s := New()
	s.AddItem(library.Item{ID: 30, Title: "Heat"})
	s.Add(10)
	s.AddItem(library.Item{ID: 20, Title: "Ronin"})

	if err := store.Save(ctx, "weekend", s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(ctx, "weekend")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff([]int64{30, 10, 20}, loaded.Snapshot()); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int64]string{30: "Heat", 20: "Ronin"}, loaded.Titles()); diff != "" {
		t.Errorf("Titles() mismatch (-want +got):\n%s", diff)
	}

	ttl, err := client.TTL(ctx, idsKey("weekend")).Result()
	if err != nil || ttl <= 0 {
		t.Errorf("TTL = %v (err %v), want positive", ttl, err)
	}

	s.Remove(30)
	if err := store.Save(ctx, "weekend", s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, _ = store.Load(ctx, "weekend")
	if diff := cmp.Diff([]int64{10, 20}, loaded.Snapshot()); diff != "" {
		t.Errorf("Save should replace, Snapshot() mismatch (-want +got):\n%s", diff)
	}

	if err := store.Delete(ctx, "weekend"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "weekend"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "weekend"); err != nil {
		t.Errorf("Delete of missing selection error = %v", err)
	}
}

func TestRedisStore_SaveRequiresName(t *testing.T) {
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: "localhost:0"}), 0)
	if err := store.Save(context.Background(), "", New()); err == nil {
		t.Error("Save with empty name should fail")
	}
}
