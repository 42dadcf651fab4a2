package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var shopInfoCmd = &cobra.Command{
	Use:   "info <shop-id>",
	Short: "Show detailed information about a shop mirror",
	Args:  cobra.ExactArgs(1),
	RunE:  runShopInfo,
}

func runShopInfo(cmd *cobra.Command, args []string) error {
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

	// Mirror database file size
	dbPath := filepath.Join(managed.BasePath, "shop.db")
	var sizeBytes int64
	if info, statErr := os.Stat(dbPath); statErr == nil {
		sizeBytes = info.Size()
	}

	stats, err := managed.Store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read mirror stats: %w", err)
	}
	schemaVersion := managed.SchemaVersion()

	out := cmd.OutOrStdout()

	if shopJSONOutput {
		doc := map[string]any{
			"id":              managed.ID,
			"created":         managed.Meta.Created,
			"last_accessed":   managed.Meta.LastAccessed,
			"size_bytes":      sizeBytes,
			"schema_version":  schemaVersion,
			"path":            managed.BasePath,
			"orders":          stats.Orders,
			"tickets":         stats.Tickets,
			"pending_patches": stats.PendingPatches,
		}
		if stats.LastSyncedAt != nil {
			doc["last_synced"] = stats.LastSyncedAt
		}
		if managed.Meta.Description != "" {
			doc["description"] = managed.Meta.Description
		}
		return printJSON(out, doc)
	}

	fmt.Fprintf(out, "Shop:            %s\n", managed.ID)
	if managed.Meta.Description != "" {
		fmt.Fprintf(out, "Description:     %s\n", managed.Meta.Description)
	}
	fmt.Fprintf(out, "Created:         %s\n", managed.Meta.Created.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Last Accessed:   %s\n", managed.Meta.LastAccessed.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Size:            %s\n", formatSize(sizeBytes))
	fmt.Fprintf(out, "Schema:          v%d\n", schemaVersion)
	fmt.Fprintf(out, "Orders:          %d\n", stats.Orders)
	fmt.Fprintf(out, "Tickets:         %d\n", stats.Tickets)
	fmt.Fprintf(out, "Pending Patches: %d\n", stats.PendingPatches)
	if stats.LastSyncedAt != nil {
		fmt.Fprintf(out, "Last Synced:     %s\n", stats.LastSyncedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(out, "Path:            %s\n", managed.BasePath)

	return nil
}
