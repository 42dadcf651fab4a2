package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/venuekit/turnstile/internal/multistore"
)

var deleteForce bool

var shopDeleteCmd = &cobra.Command{
	Use:   "delete <shop-id>",
	Short: "Delete a shop mirror and all its local data",
	Long: "Permanently delete a shop's local mirror, including any queued\n" +
		"check-ins that have not reached the server. Requires --force or\n" +
		"interactive confirmation.",
	Args: cobra.ExactArgs(1),
	RunE: runShopDelete,
}

func init() {
	shopDeleteCmd.Flags().BoolVar(&deleteForce, "force", false,
		"Skip confirmation prompt")
}

func runShopDelete(cmd *cobra.Command, args []string) error {
	shopID := args[0]
	ctx := context.Background()

	if err := multistore.ValidateShopID(shopID); err != nil {
		return err
	}

	mgr, err := resolveStoreManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	// Interactive confirmation unless --force
	if !deleteForce {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "WARNING: This will permanently delete the mirror for shop %q,\n", shopID)
		fmt.Fprintln(errOut, "including any check-ins that have not reached the server.")
		fmt.Fprint(errOut, "Type the shop ID to confirm: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}

		if strings.TrimSpace(input) != shopID {
			fmt.Fprintln(errOut, "Aborted. Shop ID did not match.")
			return nil
		}
	}

	if err := mgr.DeleteStore(ctx, shopID); err != nil {
		return err
	}

	if shopJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"id":      shopID,
			"deleted": true,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted shop %q\n", shopID)
	return nil
}
