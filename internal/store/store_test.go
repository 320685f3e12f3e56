package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"draftsmith/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "workflow/abc", `{"status":"researching"}`, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value, ok, err := s.Get(ctx, "workflow/abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || value != `{"status":"researching"}` {
		t.Fatalf("unexpected value %q ok=%v", value, ok)
	}

	_, ok, err = s.Get(ctx, "workflow/missing")
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if ok {
		t.Fatal("expected missing key to report absent")
	}
}

func TestPutIncrementsRevision(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", "v1", 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, rev1, _, err := s.GetRev(ctx, "k")
	if err != nil {
		t.Fatalf("GetRev: %v", err)
	}
	if err := s.Put(ctx, "k", "v2", 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, rev2, _, err := s.GetRev(ctx, "k")
	if err != nil {
		t.Fatalf("GetRev: %v", err)
	}
	if rev2 != rev1+1 {
		t.Fatalf("expected revision to increment, got %d -> %d", rev1, rev2)
	}
}

func TestPutRevConditionalCreate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.PutRev(ctx, "k", "v1", 0, 0); err != nil {
		t.Fatalf("conditional create: %v", err)
	}
	err := s.PutRev(ctx, "k", "v2", 0, 0)
	if !errors.Is(err, store.ErrRevisionConflict) {
		t.Fatalf("expected revision conflict on duplicate create, got %v", err)
	}
}

func TestPutRevDetectsLostUpdate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.PutRev(ctx, "k", "v1", 0, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, rev, _, err := s.GetRev(ctx, "k")
	if err != nil {
		t.Fatalf("GetRev: %v", err)
	}

	// First writer wins.
	if err := s.PutRev(ctx, "k", "v2", rev, 0); err != nil {
		t.Fatalf("first conditional update: %v", err)
	}
	// Second writer holds a stale revision and must not clobber.
	err = s.PutRev(ctx, "k", "v3", rev, 0)
	if !errors.Is(err, store.ErrRevisionConflict) {
		t.Fatalf("expected revision conflict, got %v", err)
	}
	value, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != "v2" {
		t.Fatalf("expected winning value v2, got %q", value)
	}
}

func TestTTLEntryVisibleBeforeExpiry(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "short", "v", time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "short"); !ok {
		t.Fatal("expected unexpired entry to be present")
	}
	keys, err := s.List(ctx, "short")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected entry in listing, got %v", keys)
	}
}

func TestListByPrefix(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	entries := map[string]string{
		"dedup/video/abc":  "1",
		"dedup/feed/xyz":   "1",
		"workflow/item-1":  "1",
		"workflow/item-2":  "1",
		"discovery/report": "1",
	}
	for k, v := range entries {
		if err := s.Put(ctx, k, v, 0); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	keys, err := s.List(ctx, "workflow/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 || keys[0] != "workflow/item-1" || keys[1] != "workflow/item-2" {
		t.Fatalf("unexpected prefix listing: %v", keys)
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != len(entries) {
		t.Fatalf("expected %d keys, got %d", len(entries), len(all))
	}
}

func TestPurgeExpired(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "keep", "v", time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "stays", "v", 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	purged, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 0 {
		t.Fatalf("expected no purged entries, got %d", purged)
	}
}
