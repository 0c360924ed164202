package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"autodrop/internal/rediskeys"
	"autodrop/internal/snapshot"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	store := New(&redis.Options{Addr: mr.Addr(), DialTimeout: 500 * time.Millisecond}, "test")
	ctx := context.Background()
	var pingErr error
	for i := 0; i < 5; i++ {
		if err := store.client.Ping(ctx).Err(); err == nil {
			pingErr = nil
			break
		} else {
			pingErr = err
			time.Sleep(10 * time.Millisecond)
		}
	}
	if pingErr != nil {
		t.Fatalf("redis ping failed: %v", pingErr)
	}
	return store, mr
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, mr := newTestStore(t)
	defer mr.Close()
	defer store.Close()

	snap := snapshot.Empty()
	snap.Producers = []int64{1}
	snap.Queue = []string{"10.0.0.1", "10.0.0.2"}
	snap.Enabled = true
	snap.SavedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Queue) != 2 || !got.Enabled || got.Producers[0] != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	savedAt, err := mr.Get(rediskeys.SavedAtKey("test"))
	if err != nil || savedAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("saved_at = %q err=%v", savedAt, err)
	}
	if ttl := mr.TTL(rediskeys.SnapshotKey("test")); ttl != 0 {
		t.Fatalf("expected snapshot without TTL, ttl=%v", ttl)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store, mr := newTestStore(t)
	defer mr.Close()
	defer store.Close()

	if _, err := store.Load(context.Background()); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_LoadMalformed(t *testing.T) {
	store, mr := newTestStore(t)
	defer mr.Close()
	defer store.Close()

	if err := mr.Set(rediskeys.SnapshotKey("test"), "garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, snapshot.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	err := store.Save(context.Background(), snapshot.Empty())
	if !errors.Is(err, snapshot.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
