package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var shopListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all local shop mirrors",
	Args:  cobra.NoArgs,
	RunE:  runShopList,
}

func runShopList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	mgr, err := resolveStoreManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	shops, err := mgr.ListStores(ctx)
	if err != nil {
		return fmt.Errorf("list shops: %w", err)
	}

	// Sort by ID
	sort.Slice(shops, func(i, j int) bool {
		return shops[i].ID < shops[j].ID
	})

	if shopJSONOutput {
		items := make([]map[string]any, len(shops))
		for i, s := range shops {
			items[i] = map[string]any{
				"id":            s.ID,
				"size_bytes":    s.SizeBytes,
				"created":       s.Created,
				"last_accessed": s.LastAccessed,
				"description":   s.Description,
			}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"shops": items,
			"total": len(items),
		})
	}

	if len(shops) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No shop mirrors found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tSIZE\tCREATED\tLAST ACCESSED")
	for _, s := range shops {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.ID,
			formatSize(s.SizeBytes),
			s.Created.Format("2006-01-02 15:04"),
			s.LastAccessed.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	return nil
}
