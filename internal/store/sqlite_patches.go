package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/venuekit/turnstile/internal/types"
)

// PutPatch stores or overwrites the queued patch for the patch's secret. At
// most one unresolved patch exists per secret; a newer local edit wins.
func (s *SQLiteStore) PutPatch(ctx context.Context, patch types.TicketPatch) error {
	if patch.Secret == "" {
		return fmt.Errorf("%w: patch without secret", ErrTransactionFailed)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := json.Marshal(patch)
		if err != nil {
			return fmt.Errorf("marshal patch %s: %w", patch.Secret, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO ticket_patches (secret, doc, queued_at)
			VALUES (?, ?, ?)
		`, patch.Secret, string(doc), patch.QueuedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("put patch %s: %w", patch.Secret, err)
		}
		return nil
	})
}

// GetAllPatches returns every queued patch in enqueue order.
func (s *SQLiteStore) GetAllPatches(ctx context.Context) ([]types.TicketPatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM ticket_patches ORDER BY queued_at ASC, secret ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query patches: %w", err)
	}
	defer rows.Close()

	var patches []types.TicketPatch
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan patch: %w", err)
		}
		var patch types.TicketPatch
		if err := json.Unmarshal([]byte(doc), &patch); err != nil {
			return nil, fmt.Errorf("decode patch: %w", err)
		}
		patches = append(patches, patch)
	}
	return patches, rows.Err()
}

// DeletePatch removes the queued patch for a secret after the server has
// acknowledged it. Deleting an absent secret is a no-op so acknowledgements
// may be applied more than once.
func (s *SQLiteStore) DeletePatch(ctx context.Context, secret string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_patches WHERE secret = ?`, secret); err != nil {
			return fmt.Errorf("delete patch %s: %w", secret, err)
		}
		return nil
	})
}

// DeletePatchThrough removes the queued patch for a secret only when it was
// enqueued at or before queuedAt. A patch overwritten by a newer local edit
// after a flush read it stays queued so the newer edit still reaches the
// server. Reports whether a row was removed.
func (s *SQLiteStore) DeletePatchThrough(ctx context.Context, secret string, queuedAt time.Time) (bool, error) {
	deleted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var stored string
		err := tx.QueryRowContext(ctx, `
			SELECT queued_at FROM ticket_patches WHERE secret = ?
		`, secret).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read patch %s: %w", secret, err)
		}

		at, err := time.Parse(time.RFC3339Nano, stored)
		if err != nil {
			return fmt.Errorf("decode patch %s queued_at: %w", secret, err)
		}
		if at.After(queuedAt) {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_patches WHERE secret = ?`, secret); err != nil {
			return fmt.Errorf("delete patch %s: %w", secret, err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}
