package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"
)

func pageKey(section, start string) CacheKey {
	return CacheKey{
		Endpoint:    "/library/sections/" + section + "/all",
		QueryParams: url.Values{"X-Plex-Container-Start": []string{start}},
	}
}

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := pageKey("1", "0")

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() on empty store error = %v, want ErrCacheMiss", err)
	}

	if err := store.Set(ctx, key, NewEntry([]byte(`{"a":1}`), time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != `{"a":1}` {
		t.Errorf("Data = %q", got.Data)
	}
}

func TestMemoryStore_ExpiredEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := pageKey("1", "0")

	entry := NewEntry([]byte("x"), 20*time.Millisecond)
	if err := store.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after expiry error = %v, want ErrCacheMiss", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be evicted on read", store.Len())
	}
}

func TestMemoryStore_SetIgnoresStaleEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stale := &Entry{Data: []byte("x"), Expires: time.Now().Add(-time.Second)}
	if err := store.Set(ctx, pageKey("1", "0"), stale); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}

	if err := store.Set(ctx, pageKey("1", "0"), nil); err == nil {
		t.Error("Set(nil) should fail")
	}
}

func TestMemoryStore_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, key := range []CacheKey{pageKey("1", "0"), pageKey("1", "100"), pageKey("10", "0")} {
		if err := store.Set(ctx, key, NewEntry([]byte("x"), time.Minute)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	prefix := CacheKey{Endpoint: "/library/sections/1/all"}.Prefix()
	if err := store.DeletePrefix(ctx, prefix); err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}

	if _, err := store.Get(ctx, pageKey("1", "100")); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("section 1 page survived DeletePrefix: %v", err)
	}
	if _, err := store.Get(ctx, pageKey("10", "0")); err != nil {
		t.Errorf("section 10 page should survive, got %v", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := pageKey("1", "0")

	if err := store.Set(ctx, key, NewEntry([]byte("x"), time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, _ := store.Get(ctx, key)
	got.Expires = time.Now().Add(-time.Hour)

	if _, err := store.Get(ctx, key); err != nil {
		t.Errorf("mutating a returned entry changed the store: %v", err)
	}
}
