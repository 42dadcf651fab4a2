package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/venuekit/turnstile/internal/store"
	"github.com/venuekit/turnstile/internal/transport"
	"github.com/venuekit/turnstile/internal/types"
)

// Outbox is the durable pending-patch queue: local check-in edits are
// applied speculatively to the mirror and queued here until the server
// acknowledges them with authoritative tickets. At most one unresolved
// patch exists per ticket secret; a newer local edit overwrites the queued
// one. Delivery is at-least-once — flushes carry an idempotency key so the
// server can deduplicate replays.
type Outbox struct {
	session Session
	store   store.Store // nil when local storage is unavailable
	tasks   *TaskQueue
	logger  *slog.Logger

	// onAck, when set, receives the authoritative tickets of a successful
	// flush after they have been reconciled into the store.
	onAck func(tickets []types.Ticket)

	// flushMu is the reentrancy guard: TryLock makes a flush requested
	// while one is running a no-op.
	flushMu gosync.Mutex

	// mem holds queued patches when no durable store exists. Keyed by
	// ticket secret, like the ticketPatches collection it stands in for.
	memMu gosync.Mutex
	mem   map[string]types.TicketPatch
}

// NewOutbox creates the patch queue for one session. The store may be nil,
// in which case patches survive only as long as the process. A nil logger
// falls back to slog.Default.
func NewOutbox(session Session, s store.Store, tasks *TaskQueue, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		session: session,
		store:   s,
		tasks:   tasks,
		logger:  logger,
		mem:     make(map[string]types.TicketPatch),
	}
}

// OnAck registers the callback invoked with the authoritative tickets after
// each successful flush. Must be called before the outbox is in use.
func (o *Outbox) OnAck(fn func(tickets []types.Ticket)) {
	o.onAck = fn
}

// Enqueue stores or overwrites the queued patch for the patch's secret,
// applies it speculatively to the mirrored ticket, and triggers an
// asynchronous flush attempt. The flush trigger never blocks the caller.
func (o *Outbox) Enqueue(ctx context.Context, patch types.TicketPatch) error {
	if patch.Secret == "" {
		return fmt.Errorf("%w: patch without secret", ErrConsistency)
	}
	if patch.QueuedAt.IsZero() {
		patch.QueuedAt = time.Now().UTC()
	}

	if err := o.putPatch(ctx, patch); err != nil {
		return fmt.Errorf("enqueue patch: %w", err)
	}

	o.applySpeculative(ctx, patch)

	if o.tasks != nil {
		if err := o.tasks.Enqueue("outbox_flush", o.Flush); err != nil {
			o.logger.Warn("flush trigger dropped",
				"component", "outbox",
				"action", "flush_trigger_failed",
				"shop", o.session.Shop,
				"error", err,
			)
		}
	}
	return nil
}

// Flush submits every queued patch as one batch. A flush requested while
// one is in progress is a no-op; the running flush picks up later enqueues
// on its next invocation. Connectivity failures leave the queue intact and
// return nil — the next trigger retries. Any other failure propagates.
func (o *Outbox) Flush(ctx context.Context) error {
	if !o.flushMu.TryLock() {
		return nil
	}
	defer o.flushMu.Unlock()

	patches, err := o.pending(ctx)
	if err != nil {
		return fmt.Errorf("read pending patches: %w", err)
	}
	if len(patches) == 0 {
		return nil
	}

	resp, err := o.session.Client.SubmitTicketPatches(ctx, o.session.Shop, patches, uuid.NewString())
	if err != nil {
		if transport.IsConnectivity(err) {
			o.logger.Debug("flush deferred, server unreachable",
				"component", "outbox",
				"action", "flush_deferred",
				"shop", o.session.Shop,
				"pending", len(patches),
			)
			return nil
		}
		return fmt.Errorf("flush patches: %w", err)
	}

	o.reconcile(ctx, patches, resp.Results)

	o.logger.Info("patches flushed",
		"component", "outbox",
		"action", "flush_complete",
		"shop", o.session.Shop,
		"submitted", len(patches),
		"acknowledged", len(resp.Results),
	)

	if o.onAck != nil && len(resp.Results) > 0 {
		o.onAck(resp.Results)
	}
	return nil
}

// Pending returns the queued patches in enqueue order.
func (o *Outbox) Pending(ctx context.Context) ([]types.TicketPatch, error) {
	return o.pending(ctx)
}

func (o *Outbox) pending(ctx context.Context) ([]types.TicketPatch, error) {
	if o.store != nil {
		return o.store.GetAllPatches(ctx)
	}

	o.memMu.Lock()
	defer o.memMu.Unlock()
	patches := make([]types.TicketPatch, 0, len(o.mem))
	for _, p := range o.mem {
		patches = append(patches, p)
	}
	sortPatches(patches)
	return patches, nil
}

func (o *Outbox) putPatch(ctx context.Context, patch types.TicketPatch) error {
	if o.store != nil {
		return o.store.PutPatch(ctx, patch)
	}

	o.memMu.Lock()
	defer o.memMu.Unlock()
	o.mem[patch.Secret] = patch
	return nil
}

// reconcile persists the authoritative tickets and clears the queue entries
// the response covered. Entries the server did not answer for stay queued.
// A secret whose queued patch was overwritten by a newer local edit while
// the flush was in flight is left alone entirely: the newer patch stays
// queued for the next flush and its speculative mirror state keeps
// precedence over the acknowledged ticket.
func (o *Outbox) reconcile(ctx context.Context, submitted []types.TicketPatch, tickets []types.Ticket) {
	submittedAt := make(map[string]time.Time, len(submitted))
	for _, p := range submitted {
		submittedAt[p.Secret] = p.QueuedAt
	}

	if o.store != nil {
		for _, t := range tickets {
			at, ok := submittedAt[t.Secret]
			if !ok {
				continue
			}
			removed, err := o.store.DeletePatchThrough(ctx, t.Secret, at)
			if err != nil {
				o.logger.Warn("patch cleanup failed",
					"component", "outbox",
					"action", "patch_delete_failed",
					"shop", o.session.Shop,
					"error", err,
				)
				continue
			}
			if !removed {
				continue
			}
			if err := o.store.PutTickets(ctx, []types.Ticket{t}); err != nil {
				// Cache only; the server already has the truth.
				o.logger.Warn("acknowledged ticket not cached",
					"component", "outbox",
					"action", "reconcile_cache_failed",
					"shop", o.session.Shop,
					"error", err,
				)
			}
		}
		return
	}

	o.memMu.Lock()
	defer o.memMu.Unlock()
	for _, t := range tickets {
		cur, ok := o.mem[t.Secret]
		if !ok {
			continue
		}
		if cur.QueuedAt.After(submittedAt[t.Secret]) {
			continue
		}
		delete(o.mem, t.Secret)
	}
}

// applySpeculative folds the patch into the mirrored ticket so local reads
// see the edit before the server confirms it. Best-effort: a missing ticket
// or failed write only logs.
func (o *Outbox) applySpeculative(ctx context.Context, patch types.TicketPatch) {
	if o.store == nil {
		return
	}

	ticket, err := o.store.GetTicket(ctx, patch.Secret)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("speculative apply skipped",
				"component", "outbox",
				"action", "speculative_apply_failed",
				"shop", o.session.Shop,
				"error", err,
			)
		}
		return
	}

	patch.Apply(ticket)
	if err := o.store.PutTickets(ctx, []types.Ticket{*ticket}); err != nil {
		o.logger.Warn("speculative apply not cached",
			"component", "outbox",
			"action", "speculative_apply_failed",
			"shop", o.session.Shop,
			"error", err,
		)
	}
}

func sortPatches(patches []types.TicketPatch) {
	sort.Slice(patches, func(i, j int) bool {
		if !patches[i].QueuedAt.Equal(patches[j].QueuedAt) {
			return patches[i].QueuedAt.Before(patches[j].QueuedAt)
		}
		return patches[i].Secret < patches[j].Secret
	})
}
