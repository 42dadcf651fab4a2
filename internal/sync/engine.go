package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/venuekit/turnstile/internal/materialize"
	"github.com/venuekit/turnstile/internal/multistore"
	"github.com/venuekit/turnstile/internal/store"
	"github.com/venuekit/turnstile/internal/types"
)

// Config assembles an engine.
type Config struct {
	Session Session

	// Stores manages the per-shop mirror databases. May be nil, in which
	// case the engine runs network-only.
	Stores *multistore.StoreManager

	// PageLimit is the page size requested per fetch. 0 uses the
	// transport default.
	PageLimit int

	// TaskQueueSize bounds the background task queue. 0 uses a default.
	TaskQueueSize int

	Logger *slog.Logger
}

// Engine ties one session to the local mirror, cursor tracker, outbox,
// orchestrator and listener bus. It is the object the CLI and tests hold.
// Close cancels outstanding requests and drains background work; the store
// handle itself belongs to the manager and stays open for other holders.
type Engine struct {
	session Session
	logger  *slog.Logger

	store   store.Store // nil in network-only mode
	cursors *CursorTracker
	outbox  *Outbox
	orch    *Orchestrator
	bus     *Bus
	tasks   *TaskQueue
	matz    *materialize.Materializer

	// regGroup joins concurrent Registrations calls, matching the
	// stream-refresh discipline.
	regGroup singleflight.Group

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce gosync.Once
}

// New builds an engine for the session. When the local store cannot be
// opened the engine degrades to network-only operation: the condition is
// logged once as a warning and every later effect of it (unreadable
// cursors, uncached pages) stays at debug level.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Session.Shop == "" {
		return nil, errors.New("sync: session shop is required")
	}
	if cfg.Session.Client == nil {
		return nil, errors.New("sync: session client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rootCtx, cancel := context.WithCancel(context.Background())

	var s store.Store
	if cfg.Stores != nil {
		managed, err := cfg.Stores.GetStore(ctx, cfg.Session.Shop)
		switch {
		case err == nil:
			s = managed.Store
		case errors.Is(err, multistore.ErrInvalidShopID):
			cancel()
			return nil, err
		default:
			logger.Warn("local storage unavailable, running network-only",
				"component", "sync",
				"action", "storage_unavailable",
				"shop", cfg.Session.Shop,
				"error", err,
			)
		}
	}

	tasks := NewTaskQueue(rootCtx, cfg.TaskQueueSize, logger)
	bus := NewBus()
	cursors := NewCursorTracker(s, logger)
	outbox := NewOutbox(cfg.Session, s, tasks, logger)
	orch := NewOrchestrator(rootCtx, cfg.Session, s, cursors, bus, tasks, cfg.PageLimit, logger)

	e := &Engine{
		session: cfg.Session,
		logger:  logger,
		store:   s,
		cursors: cursors,
		outbox:  outbox,
		orch:    orch,
		bus:     bus,
		tasks:   tasks,
		matz:    materialize.New(logger),
		ctx:     rootCtx,
		cancel:  cancel,
	}

	outbox.OnAck(func(tickets []types.Ticket) {
		if err := tasks.Enqueue("publish_acknowledged", func(context.Context) error {
			bus.PublishTickets(tickets)
			return nil
		}); err != nil {
			bus.PublishTickets(tickets)
		}
	})

	return e, nil
}

// scoped derives a context cancelled by whichever comes first: the caller's
// context or the engine closing.
func (e *Engine) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// RefreshAll refreshes both streams concurrently.
func (e *Engine) RefreshAll(ctx context.Context) error {
	ctx, cancel := e.scoped(ctx)
	defer cancel()
	return e.orch.RefreshAll(ctx)
}

// RefreshOrders refreshes the orders stream, joining a cycle in flight.
func (e *Engine) RefreshOrders(ctx context.Context) error {
	ctx, cancel := e.scoped(ctx)
	defer cancel()
	return e.orch.Refresh(ctx, StreamOrders)
}

// RefreshTickets refreshes the tickets stream, joining a cycle in flight.
func (e *Engine) RefreshTickets(ctx context.Context) error {
	ctx, cancel := e.scoped(ctx)
	defer cancel()
	return e.orch.Refresh(ctx, StreamTickets)
}

// Reset clears both streams' mirrored rows and positions, then runs a full
// resync from the origin. A refresh cycle already in flight when Reset is
// called was positioned before the request and cannot honor it, so Reset
// keeps refreshing until a cycle that started after the request has run.
func (e *Engine) Reset(ctx context.Context) error {
	e.orch.RequestReset(StreamOrders)
	e.orch.RequestReset(StreamTickets)
	for {
		if err := e.RefreshAll(ctx); err != nil {
			return err
		}
		if !e.orch.ResetPending(StreamOrders) && !e.orch.ResetPending(StreamTickets) {
			return nil
		}
	}
}

// CheckIn toggles a ticket's check-in state: the edit is applied to the
// local mirror immediately and queued for the server. The flush attempt it
// triggers runs in the background; use Flush to force one synchronously.
func (e *Engine) CheckIn(ctx context.Context, secret string, checkedIn bool) error {
	patch := types.TicketPatch{
		Secret:    secret,
		CheckedIn: &checkedIn,
		QueuedAt:  time.Now().UTC(),
	}
	if checkedIn {
		now := time.Now().UTC()
		patch.CheckedInAt = &now
	}
	return e.EnqueuePatch(ctx, patch)
}

// EnqueuePatch queues an arbitrary ticket patch, overwriting any queued
// patch for the same secret.
func (e *Engine) EnqueuePatch(ctx context.Context, patch types.TicketPatch) error {
	ctx, cancel := e.scoped(ctx)
	defer cancel()
	return e.outbox.Enqueue(ctx, patch)
}

// Flush submits the queued patches now. Connectivity failures return nil
// and leave the queue intact.
func (e *Engine) Flush(ctx context.Context) error {
	ctx, cancel := e.scoped(ctx)
	defer cancel()
	return e.outbox.Flush(ctx)
}

// Pending returns the queued patches in enqueue order.
func (e *Engine) Pending(ctx context.Context) ([]types.TicketPatch, error) {
	return e.outbox.Pending(ctx)
}

// Orders reads the mirrored orders. Fails with ErrStorageUnavailable in
// network-only mode.
func (e *Engine) Orders(ctx context.Context) ([]types.Order, error) {
	if e.store == nil {
		return nil, store.ErrStorageUnavailable
	}
	return e.store.GetAllOrders(ctx)
}

// Tickets reads the mirrored tickets. Fails with ErrStorageUnavailable in
// network-only mode.
func (e *Engine) Tickets(ctx context.Context) ([]types.Ticket, error) {
	if e.store == nil {
		return nil, store.ErrStorageUnavailable
	}
	return e.store.GetAllTickets(ctx)
}

// Ticket reads one mirrored ticket by secret.
func (e *Engine) Ticket(ctx context.Context, secret string) (*types.Ticket, error) {
	if e.store == nil {
		return nil, store.ErrStorageUnavailable
	}
	return e.store.GetTicket(ctx, secret)
}

// Registrations fetches the organization's sealed registrations and groups,
// decrypts what it can with the session key pair and returns the decorated
// batch. Nothing is persisted and nothing is published; the key pair is
// borrowed for the duration of the call. Concurrent calls join one fetch.
func (e *Engine) Registrations(ctx context.Context) ([]types.Registration, error) {
	if e.session.Organization == "" {
		return nil, errors.New("sync: session has no organization")
	}

	ctx, cancel := e.scoped(ctx)
	defer cancel()

	ch := e.regGroup.DoChan("registrations", func() (any, error) {
		// The flight runs under the engine's lifetime, not the initiating
		// caller's context, so joined callers survive the initiator
		// cancelling.
		fctx, cancel := context.WithCancel(e.ctx)
		defer cancel()

		var sealed []types.SealedRegistration
		var groups []types.Group

		g, gctx := errgroup.WithContext(fctx)
		g.Go(func() error {
			var err error
			sealed, err = e.session.Client.FetchRegistrations(gctx, e.session.Organization)
			return err
		})
		g.Go(func() error {
			var err error
			groups, err = e.session.Client.FetchGroups(gctx, e.session.Organization)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("load registrations: %w", err)
		}

		return e.matz.Registrations(sealed, groups, e.session.KeyPair), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]types.Registration), nil
	}
}

// SubscribeOrders registers a listener for committed order pages.
func (e *Engine) SubscribeOrders(fn func([]types.Order)) (unsubscribe func()) {
	return e.bus.SubscribeOrders(fn)
}

// SubscribeTickets registers a listener for committed ticket pages and
// flush-acknowledged tickets.
func (e *Engine) SubscribeTickets(fn func([]types.Ticket)) (unsubscribe func()) {
	return e.bus.SubscribeTickets(fn)
}

// Close cancels outstanding requests and drains the background task queue.
// In-flight database transactions are not aborted; they complete or fail on
// their own. Safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		e.tasks.Close()
	})
}
