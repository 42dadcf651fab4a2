package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/venuekit/turnstile/internal/store"
	"github.com/venuekit/turnstile/internal/types"
)

// CursorState classifies a stream's sync position.
type CursorState int

const (
	// CursorUnset means the stream has never been synced (or the persisted
	// position is unreadable). The next refresh starts from the origin.
	CursorUnset CursorState = iota
	// CursorNone means the stream has been synced and nothing was seen yet.
	CursorNone
	// CursorAt means the stream was synced up to Cursor.
	CursorAt
)

// StreamCursor is a stream's position: a state plus, for CursorAt, the
// ordering key of the newest committed item.
type StreamCursor struct {
	State  CursorState
	Cursor types.Cursor
}

// Filter converts the position into the pagination filter for the next
// fetch. Unset and none both request the stream from its origin.
func (c StreamCursor) Filter() types.CursorFilter {
	if c.State == CursorAt {
		return c.Cursor.Filter()
	}
	return types.CursorFilter{}
}

// cursorRecord is the versioned settings document a position persists as.
// The version field gates the decode switch; breaking changes bump it.
type cursorRecord struct {
	Version int           `json:"v"`
	State   string        `json:"state"`
	Cursor  *types.Cursor `json:"cursor,omitempty"`
}

// CursorTracker tracks per-stream sync positions. Positions are cached in
// memory after the first load and persisted to the settings collection on
// every advance. All methods are safe for concurrent use.
type CursorTracker struct {
	store  store.Store // nil when local storage is unavailable
	logger *slog.Logger

	mu     gosync.Mutex
	loaded map[Stream]StreamCursor
}

// NewCursorTracker creates a tracker over the given store. A nil store
// means no persistence: positions live in memory only and every process
// start resyncs from the origin.
func NewCursorTracker(s store.Store, logger *slog.Logger) *CursorTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CursorTracker{
		store:  s,
		logger: logger,
		loaded: make(map[Stream]StreamCursor),
	}
}

func settingName(stream Stream) string {
	return "cursor:" + string(stream)
}

// Load returns the stream's position. The persisted position is consulted
// once per process; later calls reuse the in-memory copy. Any read or
// decode failure resolves to CursorUnset so the caller proceeds as a full
// resync.
func (t *CursorTracker) Load(ctx context.Context, stream Stream) StreamCursor {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.loaded[stream]; ok {
		return cur
	}

	cur := t.readPersisted(ctx, stream)
	t.loaded[stream] = cur
	return cur
}

func (t *CursorTracker) readPersisted(ctx context.Context, stream Stream) StreamCursor {
	if t.store == nil {
		return StreamCursor{State: CursorUnset}
	}

	value, err := t.store.GetSetting(ctx, settingName(stream))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.logger.Warn("cursor read failed, resyncing from origin",
				"component", "sync",
				"action", "cursor_read_failed",
				"stream", string(stream),
				"error", err,
			)
		}
		return StreamCursor{State: CursorUnset}
	}

	var rec cursorRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil || rec.Version != 1 {
		t.logger.Warn("cursor record unreadable, resyncing from origin",
			"component", "sync",
			"action", "cursor_decode_failed",
			"stream", string(stream),
		)
		return StreamCursor{State: CursorUnset}
	}

	switch rec.State {
	case "none":
		return StreamCursor{State: CursorNone}
	case "at":
		if rec.Cursor == nil {
			return StreamCursor{State: CursorUnset}
		}
		return StreamCursor{State: CursorAt, Cursor: *rec.Cursor}
	default:
		return StreamCursor{State: CursorUnset}
	}
}

// Advance moves the stream's position to newest. Called only after the
// corresponding page has been committed; moving backwards breaks cursor
// monotonicity and is reported as ErrConsistency. Persistence failures are
// logged, not returned: the in-memory position still advances and the worst
// case after a crash is refetching already-seen items.
func (t *CursorTracker) Advance(ctx context.Context, stream Stream, newest types.Cursor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.loaded[stream]; ok && cur.State == CursorAt {
		if newest.Before(cur.Cursor) {
			return fmt.Errorf("%w: cursor for %s moving backwards", ErrConsistency, stream)
		}
	}

	t.loaded[stream] = StreamCursor{State: CursorAt, Cursor: newest}
	t.persist(ctx, stream, cursorRecord{Version: 1, State: "at", Cursor: &newest})
	return nil
}

// MarkSynced records that a refresh completed without the stream ever
// having produced an item: synced, nothing yet seen. A position that is
// already at an item is left alone.
func (t *CursorTracker) MarkSynced(ctx context.Context, stream Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.loaded[stream]; ok && cur.State == CursorAt {
		return
	}

	t.loaded[stream] = StreamCursor{State: CursorNone}
	t.persist(ctx, stream, cursorRecord{Version: 1, State: "none"})
}

// Forget drops the stream's position, in memory and persisted, so the next
// refresh starts from the origin.
func (t *CursorTracker) Forget(ctx context.Context, stream Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.loaded, stream)
	if t.store == nil {
		return
	}
	if err := t.store.DeleteSetting(ctx, settingName(stream)); err != nil {
		t.logger.Warn("cursor delete failed",
			"component", "sync",
			"action", "cursor_delete_failed",
			"stream", string(stream),
			"error", err,
		)
	}
}

// ResetMirror clears a shop mirror's rows and stream positions directly on
// the store, without touching the network. Used for offline resets; a
// running engine resyncs through its own Reset instead.
func ResetMirror(ctx context.Context, s store.Store) error {
	if s == nil {
		return store.ErrStorageUnavailable
	}
	if err := s.ClearOrders(ctx); err != nil {
		return fmt.Errorf("clear orders: %w", err)
	}
	if err := s.ClearTickets(ctx); err != nil {
		return fmt.Errorf("clear tickets: %w", err)
	}
	for _, stream := range []Stream{StreamOrders, StreamTickets} {
		if err := s.DeleteSetting(ctx, settingName(stream)); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("drop %s cursor: %w", stream, err)
		}
	}
	return nil
}

func (t *CursorTracker) persist(ctx context.Context, stream Stream, rec cursorRecord) {
	if t.store == nil {
		return
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		t.logger.Warn("cursor encode failed",
			"component", "sync",
			"action", "cursor_persist_failed",
			"stream", string(stream),
			"error", err,
		)
		return
	}
	if err := t.store.SetSetting(ctx, settingName(stream), string(doc)); err != nil {
		t.logger.Warn("cursor persist failed",
			"component", "sync",
			"action", "cursor_persist_failed",
			"stream", string(stream),
			"error", err,
		)
	}
}
