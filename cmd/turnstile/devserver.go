package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/venuekit/turnstile/internal/config"
	"github.com/venuekit/turnstile/internal/devserver"
	"github.com/venuekit/turnstile/pkg/sealedbox"
)

var (
	devSeedOrders        int
	devSeedTickets       int
	devSeedRegistrations int
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a development shop API with seeded fixture data",
	Long: "Serve the shop API from an in-memory fixture, for development and\n" +
		"end-to-end testing against a real HTTP surface. Prints the token and\n" +
		"key pair a client needs to connect.",
	Args: cobra.NoArgs,
	RunE: runDevserver,
}

func init() {
	devserverCmd.Flags().IntVar(&devSeedOrders, "orders", 40,
		"Number of orders to seed")
	devserverCmd.Flags().IntVar(&devSeedTickets, "tickets-per-order", 3,
		"Number of tickets per seeded order")
	devserverCmd.Flags().IntVar(&devSeedRegistrations, "registrations", 12,
		"Number of sealed registrations to seed")
}

func runDevserver(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg)

	token := cfg.DevServer.Token
	if token == "" {
		token = uuid.NewString()
	}

	// Registrations are sealed to the configured organization key, or to a
	// throwaway pair generated (and printed) for this run.
	var kp sealedbox.KeyPair
	generated := false
	if cfg.Organization.PublicKey != "" {
		kp.Public, err = sealedbox.ParseKey(cfg.Organization.PublicKey)
		if err != nil {
			return fmt.Errorf("organization public key: %w", err)
		}
	} else {
		kp, err = sealedbox.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("generate key pair: %w", err)
		}
		generated = true
	}

	state := devserver.NewState()
	if err := state.Seed(devserver.SeedOptions{
		Seed:            cfg.DevServer.Seed,
		Orders:          devSeedOrders,
		TicketsPerOrder: devSeedTickets,
		Registrations:   devSeedRegistrations,
		OrgPublicKey:    kp.Public,
	}); err != nil {
		return fmt.Errorf("seed fixture: %w", err)
	}

	handler := devserver.NewHandler(state, token, Version)
	addr := fmt.Sprintf(":%d", cfg.DevServer.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      devserver.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Development shop API listening on %s\n", addr)
	fmt.Fprintf(out, "  TURNSTILE_API_URL=http://localhost%s\n", addr)
	fmt.Fprintf(out, "  TURNSTILE_API_TOKEN=%s\n", token)
	fmt.Fprintf(out, "  TURNSTILE_ORG_PUBLIC_KEY=%s\n", sealedbox.EncodeKey(kp.Public))
	if generated {
		fmt.Fprintf(out, "  TURNSTILE_ORG_PRIVATE_KEY=%s\n", sealedbox.EncodeKey(kp.Private))
	}

	go func() {
		// ErrServerClosed is the expected error after a graceful Shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			fmt.Fprintf(cmd.ErrOrStderr(), "server error: %v\n", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
