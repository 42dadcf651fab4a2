package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/venuekit/turnstile/internal/store"
	"github.com/venuekit/turnstile/internal/types"
)

// Orchestrator drives incremental refresh cycles: it drains server pages
// following the cursor, commits each page to the local store, advances the
// cursor, and republishes newly observed entities. Within one stream the
// order is strict — commit, then cursor advance, then next fetch. Across
// streams there is no ordering guarantee.
type Orchestrator struct {
	session   Session
	base      context.Context // flights run under this, not the initiator's context
	store     store.Store     // nil when local storage is unavailable
	cursors   *CursorTracker
	bus       *Bus
	tasks     *TaskQueue
	logger    *slog.Logger
	pageLimit int

	// group serializes refresh cycles per stream: a refresh already in
	// flight is joined, never duplicated.
	group singleflight.Group

	resetMu   gosync.Mutex
	resetNext map[Stream]bool
}

// NewOrchestrator wires a refresh driver for one session. Refresh flights
// run under base, the owning engine's lifetime context. The store may be
// nil; the page loop then runs purely from the network.
func NewOrchestrator(base context.Context, session Session, s store.Store, cursors *CursorTracker, bus *Bus, tasks *TaskQueue, pageLimit int, logger *slog.Logger) *Orchestrator {
	if base == nil {
		base = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		session:   session,
		base:      base,
		store:     s,
		cursors:   cursors,
		bus:       bus,
		tasks:     tasks,
		logger:    logger,
		pageLimit: pageLimit,
		resetNext: make(map[Stream]bool),
	}
}

// RequestReset makes the stream's next refresh start from the origin,
// clearing the stream's mirrored rows first so entities deleted upstream
// cannot survive the resync.
func (o *Orchestrator) RequestReset(stream Stream) {
	o.resetMu.Lock()
	defer o.resetMu.Unlock()
	o.resetNext[stream] = true
}

// ResetPending reports whether a requested reset is still waiting for a
// refresh cycle to consume it. A refresh joined mid-flight was positioned
// before the request and does not count.
func (o *Orchestrator) ResetPending(stream Stream) bool {
	o.resetMu.Lock()
	defer o.resetMu.Unlock()
	return o.resetNext[stream]
}

// Refresh runs one full page-loop refresh of the stream, joining a cycle
// already in flight instead of starting a second one. The caller's context
// only bounds its wait: the flight itself runs under the orchestrator's
// lifetime context, so an initiator cancelling does not fail the callers
// that joined.
func (o *Orchestrator) Refresh(ctx context.Context, stream Stream) error {
	ch := o.group.DoChan(string(stream), func() (any, error) {
		fctx, cancel := context.WithCancel(o.base)
		defer cancel()
		return nil, o.runRefresh(fctx, stream)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// RefreshAll refreshes both streams concurrently. The streams are
// independent; one failing does not stop the other, and the first error is
// returned.
func (o *Orchestrator) RefreshAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.Refresh(ctx, StreamOrders) })
	g.Go(func() error { return o.Refresh(ctx, StreamTickets) })
	return g.Wait()
}

func (o *Orchestrator) runRefresh(ctx context.Context, stream Stream) error {
	start := o.startCursor(ctx, stream)

	o.logger.Debug("refresh started",
		"component", "sync",
		"action", "refresh_started",
		"shop", o.session.Shop,
		"stream", string(stream),
	)

	var pages, items int
	var err error
	switch stream {
	case StreamOrders:
		pages, items, err = o.drainOrders(ctx, start)
	case StreamTickets:
		pages, items, err = o.drainTickets(ctx, start)
	default:
		return fmt.Errorf("%w: unknown stream %q", ErrConsistency, stream)
	}
	if err != nil {
		return err
	}

	if items == 0 {
		o.cursors.MarkSynced(ctx, stream)
	}

	o.logger.Info("refresh complete",
		"component", "sync",
		"action", "refresh_complete",
		"shop", o.session.Shop,
		"stream", string(stream),
		"pages", pages,
		"items", items,
	)
	return nil
}

// startCursor resolves where the refresh begins. A requested reset clears
// the stream's rows and persisted position before starting from the origin.
func (o *Orchestrator) startCursor(ctx context.Context, stream Stream) StreamCursor {
	o.resetMu.Lock()
	reset := o.resetNext[stream]
	delete(o.resetNext, stream)
	o.resetMu.Unlock()

	if !reset {
		return o.cursors.Load(ctx, stream)
	}

	if o.store != nil {
		var err error
		switch stream {
		case StreamOrders:
			err = o.store.ClearOrders(ctx)
		case StreamTickets:
			err = o.store.ClearTickets(ctx)
		}
		if err != nil {
			o.logger.Warn("reset could not clear mirrored rows",
				"component", "sync",
				"action", "reset_clear_failed",
				"shop", o.session.Shop,
				"stream", string(stream),
				"error", err,
			)
		}
	}
	o.cursors.Forget(ctx, stream)
	return StreamCursor{State: CursorUnset}
}

func (o *Orchestrator) drainOrders(ctx context.Context, start StreamCursor) (pages, items int, err error) {
	filter := start.Filter()
	for {
		page, err := o.session.Client.FetchOrders(ctx, o.session.Shop, filter, o.pageLimit)
		if err != nil {
			return pages, items, fmt.Errorf("refresh orders: %w", err)
		}

		if len(page.Results) > 0 {
			o.commitOrders(ctx, page.Results)
			newest := page.Results[len(page.Results)-1].Cursor()
			if err := o.cursors.Advance(ctx, StreamOrders, newest); err != nil {
				return pages, items, err
			}
			o.publishOrders(page.Results)
			pages++
			items += len(page.Results)
		}

		if page.Next == nil {
			return pages, items, nil
		}
		filter = *page.Next
	}
}

func (o *Orchestrator) drainTickets(ctx context.Context, start StreamCursor) (pages, items int, err error) {
	filter := start.Filter()
	for {
		page, err := o.session.Client.FetchTickets(ctx, o.session.Shop, filter, o.pageLimit)
		if err != nil {
			return pages, items, fmt.Errorf("refresh tickets: %w", err)
		}

		if len(page.Results) > 0 {
			o.commitTickets(ctx, page.Results)
			newest := page.Results[len(page.Results)-1].Cursor()
			if err := o.cursors.Advance(ctx, StreamTickets, newest); err != nil {
				return pages, items, err
			}
			o.publishTickets(page.Results)
			pages++
			items += len(page.Results)
		}

		if page.Next == nil {
			return pages, items, nil
		}
		filter = *page.Next
	}
}

// commitOrders persists a page. The local cache is a best-effort
// optimization: a failed write is logged and the loop continues, it just
// means this page will be refetched after the next restart.
func (o *Orchestrator) commitOrders(ctx context.Context, orders []types.Order) {
	if o.store == nil {
		return
	}
	if err := o.store.PutOrders(ctx, orders); err != nil {
		o.logger.Warn("order page not cached",
			"component", "sync",
			"action", "commit_failed",
			"shop", o.session.Shop,
			"stream", string(StreamOrders),
			"count", len(orders),
			"error", err,
		)
	}
}

func (o *Orchestrator) commitTickets(ctx context.Context, tickets []types.Ticket) {
	if o.store == nil {
		return
	}
	if err := o.store.PutTickets(ctx, tickets); err != nil {
		o.logger.Warn("ticket page not cached",
			"component", "sync",
			"action", "commit_failed",
			"shop", o.session.Shop,
			"stream", string(StreamTickets),
			"count", len(tickets),
			"error", err,
		)
	}
}

// publishOrders hands the page to subscribers on the task queue goroutine,
// preserving page order without blocking the fetch loop on slow listeners.
func (o *Orchestrator) publishOrders(orders []types.Order) {
	if o.tasks == nil {
		o.bus.PublishOrders(orders)
		return
	}
	if err := o.tasks.Enqueue("publish_orders", func(context.Context) error {
		o.bus.PublishOrders(orders)
		return nil
	}); err != nil {
		o.bus.PublishOrders(orders)
	}
}

func (o *Orchestrator) publishTickets(tickets []types.Ticket) {
	if o.tasks == nil {
		o.bus.PublishTickets(tickets)
		return
	}
	if err := o.tasks.Enqueue("publish_tickets", func(context.Context) error {
		o.bus.PublishTickets(tickets)
		return nil
	}); err != nil {
		o.bus.PublishTickets(tickets)
	}
}
