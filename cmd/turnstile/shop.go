package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/venuekit/turnstile/internal/config"
	"github.com/venuekit/turnstile/internal/multistore"
)

var (
	shopRootOverride string
	shopJSONOutput   bool
)

var shopCmd = &cobra.Command{
	Use:   "shop",
	Short: "Manage local shop mirrors",
	Long:  "List, inspect, reset, and delete local shop mirrors without running the daemon.",
}

func init() {
	shopCmd.PersistentFlags().StringVar(&shopRootOverride, "root", "",
		"Mirror root path (overrides config and TURNSTILE_DATA_DIR)")
	shopCmd.PersistentFlags().BoolVar(&shopJSONOutput, "json", false,
		"Output in JSON format")

	shopCmd.AddCommand(shopListCmd)
	shopCmd.AddCommand(shopInfoCmd)
	shopCmd.AddCommand(shopResetCmd)
	shopCmd.AddCommand(shopDeleteCmd)
}

// resolveStoreManager creates a StoreManager from config with optional --root override.
func resolveStoreManager() (*multistore.StoreManager, error) {
	rootPath := shopRootOverride
	if rootPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		rootPath = cfg.Storage.RootPath
	}

	return multistore.NewStoreManager(rootPath)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
