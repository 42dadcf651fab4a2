package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/venuekit/turnstile/internal/config"
	"github.com/venuekit/turnstile/internal/multistore"
	engine "github.com/venuekit/turnstile/internal/sync"
)

var (
	checkinShop string
	checkinUndo bool
)

var checkinCmd = &cobra.Command{
	Use:   "checkin <ticket-secret>",
	Short: "Check a ticket in (or out) by its secret",
	Long: "Apply the check-in to the local mirror immediately and deliver it to\n" +
		"the server. With the server unreachable the check-in stays queued and\n" +
		"is delivered by the next sync or watch cycle.",
	Args: cobra.ExactArgs(1),
	RunE: runCheckin,
}

func init() {
	checkinCmd.Flags().StringVar(&checkinShop, "shop", "",
		"Shop the ticket belongs to (default: the single configured shop)")
	checkinCmd.Flags().BoolVar(&checkinUndo, "undo", false,
		"Revert the check-in instead")
}

func runCheckin(cmd *cobra.Command, args []string) error {
	secret := args[0]

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg)

	if err := requireAPI(cfg); err != nil {
		return err
	}

	shop := checkinShop
	if shop == "" {
		if len(cfg.Shops) != 1 {
			return fmt.Errorf("--shop is required with %d shops configured", len(cfg.Shops))
		}
		shop = cfg.Shops[0]
	}

	mgr, err := multistore.NewStoreManager(cfg.Storage.RootPath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	kp, err := orgKeyPair(cfg)
	if err != nil {
		return err
	}

	e, err := engine.New(ctx, engine.Config{
		Session: engine.Session{
			Shop:         shop,
			Organization: cfg.Organization.ID,
			Client:       buildClient(cfg),
			KeyPair:      kp,
		},
		Stores:        mgr,
		PageLimit:     cfg.Sync.PageLimit,
		TaskQueueSize: cfg.Sync.TaskQueueSize,
	})
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.CheckIn(ctx, secret, !checkinUndo); err != nil {
		return err
	}
	if err := e.Flush(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pending, err := e.Pending(ctx)
	if err != nil {
		return err
	}

	verb := "checked in"
	if checkinUndo {
		verb = "checked out"
	}
	if len(pending) > 0 {
		fmt.Fprintf(out, "Ticket %s %s locally; delivery queued (server unreachable)\n", secret, verb)
	} else {
		fmt.Fprintf(out, "Ticket %s %s\n", secret, verb)
	}
	return nil
}
