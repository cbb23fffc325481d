package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hoshizora/tansaku/internal/models"
)

// backends under test. Every ContentStore implementation must pass the same
// contract.
func testBackends(t *testing.T) map[string]ContentStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	badger, err := NewBadgerStore(filepath.Join(t.TempDir(), "badger"), nil)
	if err != nil {
		t.Fatal(err)
	}
	sharded, err := NewShardedFileStore(filepath.Join(t.TempDir(), "shards"), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]ContentStore{
		"sqlite":  sqlite,
		"badger":  badger,
		"sharded": sharded,
		"memory":  NewMemoryStore(),
	}
}

func TestContentStoreContract(t *testing.T) {
	for name, cs := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer cs.Close()
			ctx := context.Background()

			if cs.Name() != name {
				t.Errorf("Name() = %q, want %q", cs.Name(), name)
			}

			// Content CRUD.
			if _, err := cs.Get(ctx, "missing.md"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get missing = %v, want ErrNotFound", err)
			}
			if err := cs.Set(ctx, "a.md", []byte("alpha")); err != nil {
				t.Fatal(err)
			}
			got, err := cs.Get(ctx, "a.md")
			if err != nil || string(got) != "alpha" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := cs.Set(ctx, "a.md", []byte("updated")); err != nil {
				t.Fatal(err)
			}
			if got, _ := cs.Get(ctx, "a.md"); string(got) != "updated" {
				t.Errorf("overwrite lost: %q", got)
			}
			if err := cs.Delete(ctx, "a.md"); err != nil {
				t.Fatal(err)
			}
			if _, err := cs.Get(ctx, "a.md"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete = %v, want ErrNotFound", err)
			}

			// Metadata table.
			if _, err := cs.GetMetadata(ctx, "missing.md"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetMetadata missing = %v, want ErrNotFound", err)
			}
			meta := &models.IndexMetadata{LastModified: 111, IndexedAt: 222, ContentHash: 333, Size: 444}
			if err := cs.SetMetadata(ctx, "a.md", meta); err != nil {
				t.Fatal(err)
			}
			if err := cs.SetMetadata(ctx, "b.md", &models.IndexMetadata{Size: 1}); err != nil {
				t.Fatal(err)
			}
			gotMeta, err := cs.GetMetadata(ctx, "a.md")
			if err != nil {
				t.Fatal(err)
			}
			if *gotMeta != *meta {
				t.Errorf("GetMetadata = %+v, want %+v", gotMeta, meta)
			}
			all, err := cs.AllMetadata(ctx)
			if err != nil || len(all) != 2 {
				t.Fatalf("AllMetadata = %d entries, %v; want 2", len(all), err)
			}
			if err := cs.DeleteMetadata(ctx, "a.md"); err != nil {
				t.Fatal(err)
			}
			if all, _ := cs.AllMetadata(ctx); len(all) != 1 {
				t.Errorf("AllMetadata after delete = %d, want 1", len(all))
			}
			if err := cs.ClearMetadata(ctx); err != nil {
				t.Fatal(err)
			}
			if all, _ := cs.AllMetadata(ctx); len(all) != 0 {
				t.Errorf("AllMetadata after clear = %d, want 0", len(all))
			}

			// Metadata and content namespaces are independent.
			if err := cs.Set(ctx, "c.md", []byte("content")); err != nil {
				t.Fatal(err)
			}
			if err := cs.SetMetadata(ctx, "c.md", &models.IndexMetadata{Size: 2}); err != nil {
				t.Fatal(err)
			}
			if err := cs.Clear(ctx); err != nil {
				t.Fatal(err)
			}
			if _, err := cs.Get(ctx, "c.md"); !errors.Is(err, ErrNotFound) {
				t.Errorf("content survives Clear: %v", err)
			}
			if _, err := cs.GetMetadata(ctx, "c.md"); err != nil {
				t.Errorf("Clear wiped metadata: %v", err)
			}

			// Usage stats: absent reads as nil without error.
			if data, err := cs.GetUsageStats(ctx); err != nil || len(data) != 0 {
				t.Errorf("absent usage stats = %q, %v", data, err)
			}
			if err := cs.SetUsageStats(ctx, []byte(`{"version":2}`)); err != nil {
				t.Fatal(err)
			}
			if data, _ := cs.GetUsageStats(ctx); string(data) != `{"version":2}` {
				t.Errorf("usage stats round trip = %q", data)
			}

			// Snapshot: absent reads as nil, nil.
			if snap, err := cs.LoadSearchIndex(ctx); err != nil || snap != nil {
				t.Errorf("absent snapshot = %v, %v", snap, err)
			}
			snap := &models.Snapshot{
				Version:            models.SnapshotVersion,
				Index:              json.RawMessage(`{"version":3}`),
				TermFrequencyIndex: json.RawMessage(`{"version":2}`),
				Stats:              models.IndexStats{DocumentCount: 7, LastUpdated: 99},
				InstanceID:         "test-instance",
			}
			if err := cs.SaveSearchIndex(ctx, snap); err != nil {
				t.Fatal(err)
			}
			loaded, err := cs.LoadSearchIndex(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if loaded.Version != snap.Version || loaded.Stats.DocumentCount != 7 || loaded.InstanceID != "test-instance" {
				t.Errorf("snapshot round trip = %+v", loaded)
			}

			stats, err := cs.Stats(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if stats.Backend != name || stats.Keys == 0 {
				t.Errorf("Stats = %+v", stats)
			}
		})
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	cs := NewMemoryStore()
	ctx := context.Background()
	if err := cs.Close(); err != nil {
		t.Fatal(err)
	}
	if err := cs.Set(ctx, "a.md", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after close = %v, want ErrClosed", err)
	}
	if _, err := cs.Get(ctx, "a.md"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after close = %v, want ErrClosed", err)
	}
}
