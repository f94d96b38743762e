package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Backends {
	t.Helper()
	path := filepath.Join(t.TempDir(), "constellation.db")
	b, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPutAndGetCacheEntry(t *testing.T) {
	b := openTestStore(t)
	ctx := context.Background()
	payload, _ := json.Marshal(map[string]string{"v": "hi"})

	if err := b.PutCacheEntry(ctx, "k1", payload, time.Hour); err != nil {
		t.Fatalf("PutCacheEntry: %v", err)
	}
	entry, ok, err := b.GetCacheEntry(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("GetCacheEntry: ok=%v err=%v", ok, err)
	}
	if string(entry.Payload) != string(payload) {
		t.Fatalf("expected payload round-trip, got %s", entry.Payload)
	}
}

func TestExpiredCacheEntryIsNotReturned(t *testing.T) {
	b := openTestStore(t)
	ctx := context.Background()
	b.PutCacheEntry(ctx, "k1", []byte(`"v"`), -time.Second)

	_, ok, err := b.GetCacheEntry(ctx, "k1")
	if err != nil {
		t.Fatalf("GetCacheEntry: %v", err)
	}
	if ok {
		t.Fatalf("expected expired entry to be treated as absent")
	}
}

func TestDeleteCacheEntry(t *testing.T) {
	b := openTestStore(t)
	ctx := context.Background()
	b.PutCacheEntry(ctx, "k1", []byte(`"v"`), time.Hour)
	b.DeleteCacheEntry(ctx, "k1")

	_, ok, _ := b.GetCacheEntry(ctx, "k1")
	if ok {
		t.Fatalf("expected entry removed")
	}
}

func TestPutAndGetTrace(t *testing.T) {
	b := openTestStore(t)
	ctx := context.Background()
	payload, _ := json.Marshal(map[string]string{"status": "completed"})

	if err := b.PutTrace(ctx, "exec-1", payload); err != nil {
		t.Fatalf("PutTrace: %v", err)
	}
	record, ok, err := b.GetTrace(ctx, "exec-1")
	if err != nil || !ok {
		t.Fatalf("GetTrace: ok=%v err=%v", ok, err)
	}
	if string(record.Payload) != string(payload) {
		t.Fatalf("expected trace payload round-trip, got %s", record.Payload)
	}
}

func TestWarmCacheReloadsFromDiskOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constellation.db")
	ctx := context.Background()

	b1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b1.PutCacheEntry(ctx, "k1", []byte(`"v"`), time.Hour)
	b1.Close()

	b2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()
	_, ok, err := b2.GetCacheEntry(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("expected warm cache to reload entry on reopen, ok=%v err=%v", ok, err)
	}
}
