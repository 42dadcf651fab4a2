package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/venuekit/turnstile/internal/config"
	"github.com/venuekit/turnstile/internal/multistore"
	engine "github.com/venuekit/turnstile/internal/sync"
	"github.com/venuekit/turnstile/internal/transport"
	"github.com/venuekit/turnstile/internal/worker"
	"github.com/venuekit/turnstile/pkg/sealedbox"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "turnstile",
	Short: "Turnstile - local-first check-in sync for ticket shops",
	Long: "Turnstile mirrors a ticket shop's orders and tickets into a local\n" +
		"database, queues check-ins while offline, and keeps both in sync with\n" +
		"the shop API. Run without a subcommand to start the watch daemon.",
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(shopCmd)
	rootCmd.AddCommand(devserverCmd)
	rootCmd.AddCommand(versionCmd)
}

// runWatch is the watch daemon: one engine per configured shop, plus the
// refresh and flush coordinators, running until a signal arrives.
func runWatch(cmd *cobra.Command, args []string) error {
	// Signal handling first so startup itself is interruptible.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	initLogger(cfg)
	slog.Info("configuration loaded", "shops", len(cfg.Shops))

	if err := requireAPI(cfg); err != nil {
		return err
	}
	if len(cfg.Shops) == 0 {
		return errors.New("no shops configured (set shops in the config file or TURNSTILE_SHOPS)")
	}

	mgr, err := multistore.NewStoreManager(cfg.Storage.RootPath)
	if err != nil {
		return err
	}

	engines, err := buildEngines(ctx, cfg, mgr)
	if err != nil {
		mgr.Close()
		return err
	}
	slog.Info("engines initialized", "shops", len(engines))

	refreshers := make(map[string]worker.Refresher, len(engines))
	flushers := make(map[string]worker.Flusher, len(engines))
	for shop, e := range engines {
		refreshers[shop] = e
		flushers[shop] = e
	}

	refreshCoord := worker.NewRefreshCoordinator(refreshers, time.Duration(cfg.Sync.RefreshInterval))
	flushCoord := worker.NewFlushCoordinator(flushers, time.Duration(cfg.Sync.FlushInterval))

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "refresh", refreshCoord.Run)
	startWorker(ctx, &wg, "flush", flushCoord.Run)

	<-ctx.Done()
	slog.Info("shutdown initiated")

	// Coordinators stop on the cancelled context, then engines drain their
	// background work, then the store handles close.
	wg.Wait()
	for _, e := range engines {
		e.Close()
	}
	if err := mgr.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func initLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func requireAPI(cfg *config.Config) error {
	if cfg.API.BaseURL == "" {
		return errors.New("api base URL is required (set api.base_url or TURNSTILE_API_URL)")
	}
	if cfg.API.Token == "" {
		return errors.New("api token is required (set TURNSTILE_API_TOKEN)")
	}
	return nil
}

func buildClient(cfg *config.Config) *transport.Client {
	httpClient := &http.Client{Timeout: time.Duration(cfg.API.Timeout)}
	return transport.New(cfg.API.BaseURL, cfg.API.Token, httpClient)
}

// orgKeyPair assembles the organization's sealed-box key pair from config.
// Both halves are optional; registrations simply stay sealed without them.
func orgKeyPair(cfg *config.Config) (sealedbox.KeyPair, error) {
	var kp sealedbox.KeyPair
	if cfg.Organization.PublicKey != "" {
		pub, err := sealedbox.ParseKey(cfg.Organization.PublicKey)
		if err != nil {
			return kp, fmt.Errorf("organization public key: %w", err)
		}
		kp.Public = pub
	}
	if cfg.Organization.PrivateKey != "" {
		priv, err := sealedbox.ParseKey(cfg.Organization.PrivateKey)
		if err != nil {
			return kp, fmt.Errorf("organization private key: %w", err)
		}
		kp.Private = priv
	}
	return kp, nil
}

// buildEngines creates one engine per shop in shops. On failure, engines
// already created are closed before returning.
func buildEngines(ctx context.Context, cfg *config.Config, mgr *multistore.StoreManager) (map[string]*engine.Engine, error) {
	client := buildClient(cfg)
	kp, err := orgKeyPair(cfg)
	if err != nil {
		return nil, err
	}

	engines := make(map[string]*engine.Engine, len(cfg.Shops))
	for _, shop := range cfg.Shops {
		e, err := engine.New(ctx, engine.Config{
			Session: engine.Session{
				Shop:         shop,
				Organization: cfg.Organization.ID,
				Client:       client,
				KeyPair:      kp,
			},
			Stores:        mgr,
			PageLimit:     cfg.Sync.PageLimit,
			TaskQueueSize: cfg.Sync.TaskQueueSize,
		})
		if err != nil {
			for _, opened := range engines {
				opened.Close()
			}
			return nil, fmt.Errorf("shop %q: %w", shop, err)
		}
		engines[shop] = e
	}
	return engines, nil
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
