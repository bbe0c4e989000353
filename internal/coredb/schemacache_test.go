package coredb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSchemaCacheFingerprintMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewSchemaCache(openTestDB(t), 0)
	doc := []byte("<executable><title>Demo</title></executable>")

	if err := cache.Put(ctx, "/opt/slicer/Demo", "10:1", doc); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := cache.Get(ctx, "/opt/slicer/Demo", "10:1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != string(doc) {
		t.Fatalf("expected cached document, got %q", got)
	}
	if _, ok, err := cache.Get(ctx, "/opt/slicer/Demo", "11:2"); err != nil || ok {
		t.Fatalf("expected stale miss, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := cache.Get(ctx, "/opt/slicer/Other", "10:1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := cache.Put(ctx, "/opt/slicer/Demo", "11:2", []byte("<executable/>")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	entries, err := cache.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Fingerprint != "11:2" || entries[0].Size != int64(len("<executable/>")) {
		t.Fatalf("unexpected entries %+v", entries)
	}

	removed, err := cache.Delete(ctx, "/opt/slicer/Demo")
	if err != nil || !removed {
		t.Fatalf("expected delete, got removed=%v err=%v", removed, err)
	}
}

func TestSchemaCacheQuota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewSchemaCache(openTestDB(t), 16)
	if err := cache.Put(ctx, "/a", "1", []byte(strings.Repeat("a", 10))); err != nil {
		t.Fatalf("put a: %v", err)
	}
	err := cache.Put(ctx, "/b", "1", []byte(strings.Repeat("b", 10)))
	if !errors.Is(err, ErrCacheQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if !IsQuotaExceeded(err) {
		t.Fatalf("expected IsQuotaExceeded to match")
	}
	// Replacing an entry does not count its previous size.
	if err := cache.Put(ctx, "/a", "2", []byte(strings.Repeat("a", 16))); err != nil {
		t.Fatalf("replace a: %v", err)
	}
	n, err := cache.Clear(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one cleared entry, got %d %v", n, err)
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("v1"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	first, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if err := os.WriteFile(path, []byte("version2"), 0o755); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	second, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if first == second {
		t.Fatalf("expected fingerprint to change, both %s", first)
	}
	if _, err := Fingerprint(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestCollectStorageStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	if err := NewRuns(db).Start(ctx, "r1", "Demo", "Demo"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := NewSchemaCache(db, 0).Put(ctx, "/demo", "1", []byte("<x/>")); err != nil {
		t.Fatalf("put: %v", err)
	}
	stats, err := CollectStorageStats(ctx, db)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Runs != 1 || stats.CachedSchemas != 1 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if stats.SchemaVersion != schemaVersion || !stats.OK {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
