package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed shop mirror.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the shop database at dbPath.
// It applies pragmas and runs migrations; the on-disk schema version only
// ever moves forward, and any version transition past the initial schema
// clears all collections rather than upgrading rows in place. Open failures
// are reported as ErrStorageUnavailable so callers can fall back to
// network-only operation.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %v", ErrStorageUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorageUnavailable, err)
	}

	// Single writer connection; sidesteps SQLITE_BUSY and keeps :memory:
	// databases coherent across the pool.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable pragmas: %v", ErrStorageUnavailable, err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: run migrations: %v", ErrStorageUnavailable, err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the current migration version of the database.
func (s *SQLiteStore) SchemaVersion() (int64, error) {
	return MigrationVersion(s.db)
}

// withTx runs fn inside a transaction that fully commits or fully rolls
// back. Failures surface as ErrTransactionFailed; ErrNotFound from fn passes
// through untranslated.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}
	return nil
}

// Stats returns aggregate counts for the shop database.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&stats.Orders); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&stats.Tickets); err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticket_patches`).Scan(&stats.PendingPatches); err != nil {
		return nil, fmt.Errorf("count pending patches: %w", err)
	}

	var syncedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(synced_at) FROM (
			SELECT synced_at FROM orders
			UNION ALL
			SELECT synced_at FROM tickets
		)
	`).Scan(&syncedAt)
	if err != nil {
		return nil, fmt.Errorf("last synced at: %w", err)
	}
	if syncedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339Nano, syncedAt.String); parseErr == nil {
			stats.LastSyncedAt = &t
		}
	}

	return stats, nil
}
