package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	engine "github.com/venuekit/turnstile/internal/sync"
)

var shopResetCmd = &cobra.Command{
	Use:   "reset <shop-id>",
	Short: "Clear a shop mirror so the next sync starts from scratch",
	Long: "Drop the shop's mirrored orders and tickets and forget its sync\n" +
		"positions. Queued check-ins are kept and delivered on the next sync.",
	Args: cobra.ExactArgs(1),
	RunE: runShopReset,
}

func runShopReset(cmd *cobra.Command, args []string) error {
	shopID := args[0]
	ctx := context.Background()

	mgr, err := resolveStoreManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	managed, err := mgr.GetStore(ctx, shopID)
	if err != nil {
		return err
	}

	if err := engine.ResetMirror(ctx, managed.Store); err != nil {
		return fmt.Errorf("reset shop %q: %w", shopID, err)
	}

	if shopJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"id":    shopID,
			"reset": true,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reset shop %q; next sync fetches from the origin\n", shopID)
	return nil
}
