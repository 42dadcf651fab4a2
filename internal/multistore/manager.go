package multistore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// StoreManager manages one local mirror database per shop with lazy loading.
// The handle for a shop is a singleton: concurrent openers of the same shop
// join a single open operation instead of racing separate ones.
type StoreManager struct {
	rootPath string

	mu     sync.RWMutex
	stores map[string]*ManagedStore

	openGroup singleflight.Group
}

// NewStoreManager creates a manager rooted at the given path.
// Creates the root directory if it doesn't exist.
func NewStoreManager(rootPath string) (*StoreManager, error) {
	// Expand ~ to home directory
	if strings.HasPrefix(rootPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		rootPath = filepath.Join(home, rootPath[2:])
	}

	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("create shops root directory: %w", err)
	}

	return &StoreManager{
		rootPath: rootPath,
		stores:   make(map[string]*ManagedStore),
	}, nil
}

// GetStore returns the mirror for the given shop, opening it if necessary.
// A shop seen for the first time gets a fresh mirror; there is nothing to
// fetch locally that the server cannot resend. Open failures carry
// store.ErrStorageUnavailable when the data directory cannot be used.
func (m *StoreManager) GetStore(ctx context.Context, shopID string) (*ManagedStore, error) {
	if err := ValidateShopID(shopID); err != nil {
		return nil, err
	}

	// Fast path: already loaded.
	m.mu.RLock()
	if managed, ok := m.stores[shopID]; ok {
		m.mu.RUnlock()
		managed.TouchAccessed()
		return managed, nil
	}
	m.mu.RUnlock()

	// Slow path: all concurrent openers of this shop share one open.
	v, err, _ := m.openGroup.Do(shopID, func() (any, error) {
		m.mu.RLock()
		if managed, ok := m.stores[shopID]; ok {
			m.mu.RUnlock()
			return managed, nil
		}
		m.mu.RUnlock()

		shopPath := m.shopPath(shopID)
		if _, statErr := os.Stat(shopPath); os.IsNotExist(statErr) {
			if createErr := m.createShopDir(shopID, ""); createErr != nil {
				return nil, createErr
			}
		}

		managed, openErr := NewManagedStore(shopID, shopPath)
		if openErr != nil {
			return nil, fmt.Errorf("load shop %q: %w", shopID, openErr)
		}

		m.mu.Lock()
		m.stores[shopID] = managed
		m.mu.Unlock()

		slog.Info("shop mirror loaded",
			"component", "multistore",
			"action", "shop_loaded",
			"shop", shopID,
		)
		return managed, nil
	})
	if err != nil {
		return nil, err
	}

	managed := v.(*ManagedStore)
	managed.TouchAccessed()
	return managed, nil
}

// DeleteStore closes a shop's mirror and removes its data.
// Returns ErrShopNotFound if the shop has no local mirror.
func (m *StoreManager) DeleteStore(ctx context.Context, shopID string) error {
	if err := ValidateShopID(shopID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	shopPath := m.shopPath(shopID)

	if _, err := os.Stat(shopPath); os.IsNotExist(err) {
		return ErrShopNotFound
	}

	if managed, ok := m.stores[shopID]; ok {
		if err := managed.Close(); err != nil {
			slog.Warn("error closing shop mirror before deletion",
				"shop", shopID, "error", err)
		}
		delete(m.stores, shopID)
	}

	if err := os.RemoveAll(shopPath); err != nil {
		return fmt.Errorf("remove shop directory: %w", err)
	}

	slog.Info("shop mirror deleted",
		"component", "multistore",
		"action", "shop_deleted",
		"shop", shopID,
	)

	return nil
}

// ListStores returns metadata for every shop mirror under the root.
func (m *StoreManager) ListStores(ctx context.Context) ([]ShopInfo, error) {
	entries, err := os.ReadDir(m.rootPath)
	if err != nil {
		return nil, fmt.Errorf("read shops directory: %w", err)
	}

	var result []ShopInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		basePath := filepath.Join(m.rootPath, entry.Name())
		metaPath := filepath.Join(basePath, "meta.yaml")
		if _, err := os.Stat(metaPath); err != nil {
			continue
		}

		info, err := m.getShopInfo(entry.Name(), basePath)
		if err != nil {
			slog.Warn("error reading shop metadata",
				"shop", entry.Name(), "error", err)
			continue
		}
		result = append(result, info)
	}

	return result, nil
}

// getShopInfo collects information about a single shop mirror.
func (m *StoreManager) getShopInfo(shopID, basePath string) (ShopInfo, error) {
	meta, err := LoadShopMeta(filepath.Join(basePath, "meta.yaml"))
	if err != nil {
		return ShopInfo{}, err
	}

	var sizeBytes int64
	if info, err := os.Stat(filepath.Join(basePath, "shop.db")); err == nil {
		sizeBytes = info.Size()
	}

	return ShopInfo{
		ID:           shopID,
		Created:      meta.Created,
		LastAccessed: meta.LastAccessed,
		Description:  meta.Description,
		SizeBytes:    sizeBytes,
	}, nil
}

// shopPath returns the filesystem path for a shop ID.
func (m *StoreManager) shopPath(shopID string) string {
	return filepath.Join(m.rootPath, shopID)
}

// createShopDir creates a new shop directory with metadata.
func (m *StoreManager) createShopDir(shopID, description string) error {
	shopPath := m.shopPath(shopID)

	if err := os.MkdirAll(shopPath, 0755); err != nil {
		return fmt.Errorf("create shop directory: %w", err)
	}

	meta := NewShopMeta(description)
	if err := SaveShopMeta(filepath.Join(shopPath, "meta.yaml"), meta); err != nil {
		// Clean up directory on failure
		os.RemoveAll(shopPath)
		return fmt.Errorf("write shop metadata: %w", err)
	}

	return nil
}

// Close closes all loaded shop mirrors.
func (m *StoreManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for id, managed := range m.stores {
		if err := managed.Close(); err != nil {
			slog.Error("error closing shop mirror", "shop", id, "error", err)
			lastErr = err
		}
	}

	return lastErr
}
