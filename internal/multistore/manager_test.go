package multistore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestManager(t *testing.T) *StoreManager {
	t.Helper()
	manager, err := NewStoreManager(filepath.Join(t.TempDir(), "shops"))
	if err != nil {
		t.Fatalf("NewStoreManager() error = %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestNewStoreManager_CreatesRootDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	rootPath := filepath.Join(tmpDir, "shops")

	// Verify directory doesn't exist yet
	if _, err := os.Stat(rootPath); !os.IsNotExist(err) {
		t.Fatal("root directory should not exist initially")
	}

	manager, err := NewStoreManager(rootPath)
	if err != nil {
		t.Fatalf("NewStoreManager() error = %v", err)
	}
	defer manager.Close()

	info, err := os.Stat(rootPath)
	if err != nil {
		t.Fatalf("root directory should exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("root path should be a directory")
	}
}

func TestStoreManager_GetStore_AutoCreatesMirror(t *testing.T) {
	tmpDir := t.TempDir()
	rootPath := filepath.Join(tmpDir, "shops")

	manager, err := NewStoreManager(rootPath)
	if err != nil {
		t.Fatalf("NewStoreManager() error = %v", err)
	}
	defer manager.Close()

	ctx := context.Background()
	managed, err := manager.GetStore(ctx, "demo")
	if err != nil {
		t.Fatalf("GetStore('demo') error = %v", err)
	}

	if managed == nil {
		t.Fatal("GetStore('demo') should return a managed store")
	}
	if managed.ID != "demo" {
		t.Errorf("Shop ID = %q, want 'demo'", managed.ID)
	}

	// Mirror directory, metadata file and database must exist.
	shopDir := filepath.Join(rootPath, "demo")
	for _, name := range []string{"meta.yaml", "shop.db"} {
		if _, err := os.Stat(filepath.Join(shopDir, name)); os.IsNotExist(err) {
			t.Errorf("%s should be created", name)
		}
	}
}

func TestStoreManager_GetStore_ReturnsCachedHandle(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	first, err := manager.GetStore(ctx, "demo")
	if err != nil {
		t.Fatalf("GetStore error = %v", err)
	}
	second, err := manager.GetStore(ctx, "demo")
	if err != nil {
		t.Fatalf("GetStore error = %v", err)
	}

	if first != second {
		t.Error("repeated GetStore should return the same handle")
	}
}

func TestStoreManager_GetStore_ConcurrentOpenersShareOneHandle(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	const openers = 16
	handles := make([]*ManagedStore, openers)

	var wg sync.WaitGroup
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			managed, err := manager.GetStore(ctx, "demo")
			if err != nil {
				t.Errorf("GetStore error = %v", err)
				return
			}
			handles[i] = managed
		}(i)
	}
	wg.Wait()

	for i := 1; i < openers; i++ {
		if handles[i] != handles[0] {
			t.Fatal("concurrent openers should share one handle")
		}
	}
}

func TestStoreManager_GetStore_InvalidShopID(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.GetStore(context.Background(), "Not Valid!")
	if !errors.Is(err, ErrInvalidShopID) {
		t.Errorf("expected ErrInvalidShopID, got %v", err)
	}
}

func TestStoreManager_DeleteStore(t *testing.T) {
	tmpDir := t.TempDir()
	rootPath := filepath.Join(tmpDir, "shops")

	manager, err := NewStoreManager(rootPath)
	if err != nil {
		t.Fatalf("NewStoreManager() error = %v", err)
	}
	defer manager.Close()

	ctx := context.Background()
	if _, err := manager.GetStore(ctx, "demo"); err != nil {
		t.Fatalf("GetStore error = %v", err)
	}

	if err := manager.DeleteStore(ctx, "demo"); err != nil {
		t.Fatalf("DeleteStore error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(rootPath, "demo")); !os.IsNotExist(err) {
		t.Error("shop directory should be removed")
	}

	if err := manager.DeleteStore(ctx, "demo"); !errors.Is(err, ErrShopNotFound) {
		t.Errorf("deleting a missing shop should be ErrShopNotFound, got %v", err)
	}
}

func TestStoreManager_ListStores(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	for _, shop := range []string{"alpha", "beta"} {
		if _, err := manager.GetStore(ctx, shop); err != nil {
			t.Fatalf("GetStore(%q) error = %v", shop, err)
		}
	}

	infos, err := manager.ListStores(ctx)
	if err != nil {
		t.Fatalf("ListStores error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d shops, want 2", len(infos))
	}

	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.ID] = true
		if info.Created.IsZero() {
			t.Errorf("shop %s: Created should be set", info.ID)
		}
	}
	if !seen["alpha"] || !seen["beta"] {
		t.Errorf("expected alpha and beta, got %v", seen)
	}
}
