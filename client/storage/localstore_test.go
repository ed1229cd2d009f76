package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChIIChI1230/screenshot/client/capture"
)

func testImage(ts time.Time) *capture.Image {
	return &capture.Image{
		Data:      []byte("image-bytes"),
		Format:    capture.FormatJPEG,
		Timestamp: ts,
	}
}

func newTestStore(t *testing.T, maxFiles int, retention time.Duration) *LocalStore {
	t.Helper()

	store, err := NewLocalStore(t.TempDir(), maxFiles, retention, nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestSave_NeverOverwrites(t *testing.T) {
	store := newTestStore(t, 0, 0)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := store.Save(testImage(ts), "host")
	if err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	second, err := store.Save(testImage(ts), "host")
	if err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	if first.Path == second.Path {
		t.Fatalf("Expected distinct paths, both are %s", first.Path)
	}
	if store.Count() != 2 {
		t.Errorf("Expected 2 items, got %d", store.Count())
	}
}

func TestListPending_OldestFirst(t *testing.T) {
	store := newTestStore(t, 0, 0)

	var paths []string
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		item, err := store.Save(testImage(base.Add(time.Duration(i)*time.Second)), "host")
		if err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
		paths = append(paths, item.Path)
		// backdate mtimes to make the ordering deterministic
		age := time.Duration(3-i) * time.Hour
		if err := os.Chtimes(item.Path, time.Now().Add(-age), time.Now().Add(-age)); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
	}

	items, err := store.ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}

	for i, item := range items {
		if item.Path != paths[i] {
			t.Errorf("Position %d: expected %s, got %s", i, paths[i], item.Path)
		}
	}
}

func TestEvict_MaxFiles(t *testing.T) {
	const maxFiles = 3
	store := newTestStore(t, maxFiles, 0)

	base := time.Now().UTC()
	var newest []string
	for i := 0; i < maxFiles+2; i++ {
		item, err := store.Save(testImage(base.Add(time.Duration(i)*time.Second)), "host")
		if err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
		// spread mtimes so oldest-first is unambiguous
		mtime := time.Now().Add(time.Duration(i-10) * time.Minute)
		if err := os.Chtimes(item.Path, mtime, mtime); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
		newest = append(newest, item.Path)
	}

	store.Evict()

	items, err := store.ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(items) != maxFiles {
		t.Fatalf("Expected %d items after eviction, got %d", maxFiles, len(items))
	}

	// exactly the most recent maxFiles remain
	want := newest[len(newest)-maxFiles:]
	for i, item := range items {
		if item.Path != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], item.Path)
		}
	}
}

func TestEvict_Retention(t *testing.T) {
	store := newTestStore(t, 0, time.Hour)

	old, err := store.Save(testImage(time.Now().UTC()), "old")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old.Path, stale, stale); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	fresh, err := store.Save(testImage(time.Now().UTC().Add(time.Second)), "fresh")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	store.Evict()

	if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
		t.Errorf("Expected %s to be evicted by age", old.Path)
	}
	if _, err := os.Stat(fresh.Path); err != nil {
		t.Errorf("Expected %s to survive eviction: %v", fresh.Path, err)
	}
}

func TestEvict_UnboundedWhenZero(t *testing.T) {
	store := newTestStore(t, 0, 0)

	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		if _, err := store.Save(testImage(base.Add(time.Duration(i)*time.Second)), "host"); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	store.Evict()

	if store.Count() != 10 {
		t.Errorf("Expected all 10 items to survive with limits disabled, got %d", store.Count())
	}
}

func TestRemove_Idempotent(t *testing.T) {
	store := newTestStore(t, 0, 0)

	item, err := store.Save(testImage(time.Now().UTC()), "host")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	store.Remove(*item)
	if _, err := os.Stat(item.Path); !os.IsNotExist(err) {
		t.Fatalf("Expected %s to be removed", item.Path)
	}

	// removing again must not blow up
	store.Remove(*item)
}

func TestSave_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, 0, 0, nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	// make the directory unusable
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	_, err = store.Save(testImage(time.Now().UTC()), "host")
	if err == nil {
		t.Fatal("Expected a write error")
	}
	storeErr, ok := err.(*StoreError)
	if !ok {
		t.Fatalf("Expected *StoreError, got %T", err)
	}
	if storeErr.Op != OpWrite {
		t.Errorf("Expected op %q, got %q", OpWrite, storeErr.Op)
	}
}

func TestListPending_SkipsDirectories(t *testing.T) {
	store := newTestStore(t, 0, 0)

	if err := os.Mkdir(filepath.Join(store.Dir(), "subdir"), 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("item-%d.jpg", i)
		if err := os.WriteFile(filepath.Join(store.Dir(), name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	items, err := store.ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 items, got %d", len(items))
	}
}
