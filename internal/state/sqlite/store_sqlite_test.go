package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestStoreKVRoundTrip(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || val != "v2" {
		t.Fatalf("expected v2, got %q ok=%v err=%v", val, ok, err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected key deleted")
	}
}

func TestStoreAppendEvent(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.AppendEvent(ctx, "cycle_closed", `{"reason":"completed"}`); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	var count int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE kind = ?`, "cycle_closed").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 event row, got %d", count)
	}
}
