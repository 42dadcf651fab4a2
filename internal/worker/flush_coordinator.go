package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/venuekit/turnstile/internal/types"
)

// Flusher drains one shop's pending patch queue to the server.
// Implemented by sync.Engine.
type Flusher interface {
	Flush(ctx context.Context) error
	Pending(ctx context.Context) ([]types.TicketPatch, error)
}

// FlushCoordinator periodically drains every configured shop's patch queue,
// so patches enqueued while offline reach the server once connectivity
// returns without waiting for the next local check-in.
type FlushCoordinator struct {
	engines  map[string]Flusher // by shop ID
	interval time.Duration
}

// NewFlushCoordinator creates a coordinator over the given engines.
func NewFlushCoordinator(engines map[string]Flusher, interval time.Duration) *FlushCoordinator {
	return &FlushCoordinator{
		engines:  engines,
		interval: interval,
	}
}

// Run starts the flush loop. It blocks until ctx is cancelled.
//
// The first cycle runs immediately: patches queued while the daemon was
// stopped should not wait a full interval for their first delivery attempt.
func (c *FlushCoordinator) Run(ctx context.Context) {
	slog.Info("flush coordinator started",
		"component", "worker",
		"worker", "flush-coordinator",
		"interval", c.interval.String(),
		"shops", len(c.engines),
	)

	c.flushAllShops(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("flush coordinator stopped",
				"component", "worker",
				"worker", "flush-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.flushAllShops(ctx)
		}
	}
}

// flushAllShops flushes each shop, continuing on individual failures. A
// flush attempt against an unreachable server reports success with the
// queue intact; only server-answered rejections surface here.
func (c *FlushCoordinator) flushAllShops(ctx context.Context) {
	for shop, engine := range c.engines {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}

		pending, err := engine.Pending(ctx)
		if err != nil {
			slog.Warn("failed to inspect patch queue",
				"component", "worker",
				"worker", "flush-coordinator",
				"shop", shop,
				"error", err,
			)
			continue
		}
		if len(pending) == 0 {
			continue
		}

		if err := engine.Flush(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("flush failed for shop",
				"component", "worker",
				"worker", "flush-coordinator",
				"shop", shop,
				"patches_pending", len(pending),
				"error", err,
			)
			continue
		}

		slog.Info("flush cycle completed",
			"component", "worker",
			"worker", "flush-coordinator",
			"shop", shop,
			"patches_attempted", len(pending),
		)
	}
}
