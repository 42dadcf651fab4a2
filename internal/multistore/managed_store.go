package multistore

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/venuekit/turnstile/internal/store"
)

// ManagedStore wraps one shop's SQLiteStore with metadata and access tracking.
type ManagedStore struct {
	ID       string
	Store    store.Store
	Meta     *ShopMeta
	BasePath string // Directory containing this shop's mirror

	mu        sync.Mutex
	metaDirty bool // Track if metadata needs saving
}

// NewManagedStore opens a shop mirror from an existing directory.
func NewManagedStore(id, basePath string) (*ManagedStore, error) {
	metaPath := filepath.Join(basePath, "meta.yaml")

	meta, err := LoadShopMeta(metaPath)
	if err != nil {
		return nil, fmt.Errorf("load shop metadata: %w", err)
	}

	sqliteStore, err := store.NewSQLiteStore(filepath.Join(basePath, "shop.db"))
	if err != nil {
		return nil, fmt.Errorf("open shop database: %w", err)
	}

	return &ManagedStore{
		ID:       id,
		Store:    sqliteStore,
		Meta:     meta,
		BasePath: basePath,
	}, nil
}

// TouchAccessed updates the last_accessed timestamp.
// Saves metadata to disk periodically (not on every access).
func (m *ManagedStore) TouchAccessed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Meta.LastAccessed = time.Now().UTC()
	m.metaDirty = true
}

// FlushMeta saves metadata to disk if dirty.
func (m *ManagedStore) FlushMeta() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.metaDirty {
		return nil
	}

	metaPath := filepath.Join(m.BasePath, "meta.yaml")
	if err := SaveShopMeta(metaPath, m.Meta); err != nil {
		return err
	}

	m.metaDirty = false
	return nil
}

// Close closes the underlying store and flushes metadata.
func (m *ManagedStore) Close() error {
	if err := m.FlushMeta(); err != nil {
		// Log but don't fail close
		slog.Warn("failed to flush shop metadata", "shop", m.ID, "error", err)
	}
	return m.Store.Close()
}

// SchemaVersion returns the mirror's migration version.
// Returns 0 if it cannot be read.
func (m *ManagedStore) SchemaVersion() int64 {
	version, err := m.Store.SchemaVersion()
	if err != nil {
		return 0
	}
	return version
}
