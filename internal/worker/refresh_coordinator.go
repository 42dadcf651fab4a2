// Package worker holds the watch daemon's background coordinators: ticker
// loops that keep every configured shop's mirror fresh and its patch queue
// drained. Coordinators block in Run until their context is cancelled and
// survive per-cycle errors.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/venuekit/turnstile/internal/transport"
)

// Refresher mirrors one shop's remote streams into its local store.
// Implemented by sync.Engine.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// RefreshCoordinator periodically refreshes every configured shop.
type RefreshCoordinator struct {
	engines  map[string]Refresher // by shop ID
	interval time.Duration
}

// NewRefreshCoordinator creates a coordinator over the given engines.
func NewRefreshCoordinator(engines map[string]Refresher, interval time.Duration) *RefreshCoordinator {
	return &RefreshCoordinator{
		engines:  engines,
		interval: interval,
	}
}

// Run starts the refresh loop. It blocks until ctx is cancelled.
//
// The first cycle runs immediately so a freshly started daemon primes its
// mirrors without waiting a full interval.
func (c *RefreshCoordinator) Run(ctx context.Context) {
	slog.Info("refresh coordinator started",
		"component", "worker",
		"worker", "refresh-coordinator",
		"interval", c.interval.String(),
		"shops", len(c.engines),
	)

	c.refreshAllShops(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh coordinator stopped",
				"component", "worker",
				"worker", "refresh-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.refreshAllShops(ctx)
		}
	}
}

// refreshAllShops refreshes each shop, continuing on individual failures.
func (c *RefreshCoordinator) refreshAllShops(ctx context.Context) {
	var succeeded, failed, offline int
	for shop, engine := range c.engines {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}
		switch err := engine.RefreshAll(ctx); {
		case err == nil:
			succeeded++
		case transport.IsConnectivity(err):
			// Unreachable server is the normal offline case; the next
			// cycle retries without noise.
			offline++
			slog.Debug("refresh skipped, server unreachable",
				"component", "worker",
				"worker", "refresh-coordinator",
				"shop", shop,
				"error", err,
			)
		default:
			failed++
			if ctx.Err() != nil {
				return
			}
			slog.Error("refresh failed for shop",
				"component", "worker",
				"worker", "refresh-coordinator",
				"shop", shop,
				"error", err,
			)
		}
	}

	if succeeded > 0 || failed > 0 || offline > 0 {
		slog.Info("refresh cycle completed",
			"component", "worker",
			"worker", "refresh-coordinator",
			"shops_total", len(c.engines),
			"shops_succeeded", succeeded,
			"shops_failed", failed,
			"shops_offline", offline,
		)
	}
}
