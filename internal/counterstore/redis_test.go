package counterstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/portcall/gateway/internal/counterstore"
)

func newTestStore(t *testing.T) (*counterstore.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return counterstore.NewRedis(client), mr
}

func TestRecordAndCount_WithinWindow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		n, err := store.RecordAndCount(ctx, "route:a|client:x", now.Add(time.Duration(i)*time.Second), time.Minute)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if n != int64(i+1) {
			t.Fatalf("record %d: want count %d, got %d", i, i+1, n)
		}
	}
}

func TestRecordAndCount_EvictsOutsideWindow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.RecordAndCount(ctx, "route:a|client:x", now, 10*time.Second); err != nil {
		t.Fatalf("first record: %v", err)
	}

	n, err := store.RecordAndCount(ctx, "route:a|client:x", now.Add(30*time.Second), 10*time.Second)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected stale entry to be evicted, got count %d", n)
	}
}

func TestCount_DoesNotRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.RecordAndCount(ctx, "route:a|client:x", now, time.Minute); err != nil {
		t.Fatalf("record: %v", err)
	}

	n, err := store.Count(ctx, "route:a|client:x", now.Add(time.Second), time.Minute)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("want count 1, got %d", n)
	}

	n, err = store.Count(ctx, "route:a|client:x", now.Add(2*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("count again: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count must not add an entry, want 1, got %d", n)
	}
}

func TestClear_RemovesMatchingKeysOnly(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.RecordAndCount(ctx, "rate_limit:/api:client-x", now, time.Minute); err != nil {
		t.Fatalf("record rate_limit key: %v", err)
	}
	if _, err := store.RecordAndCount(ctx, "other:client-x", now, time.Minute); err != nil {
		t.Fatalf("record other key: %v", err)
	}

	if err := store.Clear(ctx, "rate_limit:*"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	n, err := store.Count(ctx, "rate_limit:/api:client-x", now, time.Minute)
	if err != nil {
		t.Fatalf("count cleared key: %v", err)
	}
	if n != 0 {
		t.Fatalf("want cleared key to read back 0, got %d", n)
	}

	n, err = store.Count(ctx, "other:client-x", now, time.Minute)
	if err != nil {
		t.Fatalf("count untouched key: %v", err)
	}
	if n != 1 {
		t.Fatalf("want untouched key to survive Clear, got %d", n)
	}
}

func TestCount_DifferentKeysAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.RecordAndCount(ctx, "route:a|client:x", now, time.Minute); err != nil {
		t.Fatalf("record x: %v", err)
	}
	n, err := store.Count(ctx, "route:a|client:y", now, time.Minute)
	if err != nil {
		t.Fatalf("count y: %v", err)
	}
	if n != 0 {
		t.Fatalf("distinct client key must start at 0, got %d", n)
	}
}
