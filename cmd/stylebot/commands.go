package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/stylebot/internal/config"
	"github.com/kalambet/stylebot/internal/storage"
	"github.com/kalambet/stylebot/internal/wardrobe"
)

// --- wardrobe ---

var wardrobeCmd = &cobra.Command{
	Use:   "wardrobe",
	Short: "Inspect stored wardrobes",
}

var wardrobeShowCmd = &cobra.Command{
	Use:   "show <user_id>",
	Short: "Show one user's wardrobe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return showWardrobe(cmd.OutOrStdout(), wardrobe.NewStore(cfg.WardrobePath()), args[0], asJSON)
	},
}

func showWardrobe(w io.Writer, store *wardrobe.Store, userID string, asJSON bool) error {
	if _, err := strconv.ParseInt(userID, 10, 64); err != nil {
		return fmt.Errorf("user id must be an integer, got %q", userID)
	}
	items := store.UserItems(userID)

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Fprintln(w, "No items.")
		return nil
	}
	cats := make([]string, 0, len(items))
	for c := range items {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintln(w, colorize(colorBold, c))
		for _, item := range items[c] {
			fmt.Fprintf(w, "  • %s\n", item)
		}
	}
	return nil
}

func init() {
	wardrobeShowCmd.Flags().Bool("json", false, "print the raw category map as JSON")
	wardrobeCmd.AddCommand(wardrobeShowCmd)
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect the bot event log",
}

var logsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the event log as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		store, err := openEvents()
		if err != nil {
			return err
		}
		defer store.Close()

		var writer io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		if err := store.ExportCSV(writer); err != nil {
			return fmt.Errorf("exporting events: %w", err)
		}
		if output != "" {
			printSuccess("Event log exported to %s", output)
		}
		return nil
	},
}

var logsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		kind, _ := cmd.Flags().GetString("kind")

		store, err := openEvents()
		if err != nil {
			return err
		}
		defer store.Close()

		return tailEvents(cmd.OutOrStdout(), store, storage.EventFilter{Limit: limit, Kind: kind})
	},
}

// tailEvents prints matching events oldest first, so the newest is at the bottom.
func tailEvents(w io.Writer, store *storage.Store, f storage.EventFilter) error {
	events, err := store.ListEvents(f)
	if err != nil {
		return fmt.Errorf("listing events: %w", err)
	}
	if len(events) == 0 {
		printWarning("No events found")
		return nil
	}
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		kind := e.Kind
		if kind == storage.KindError {
			kind = colorize(colorRed, kind)
		}
		fmt.Fprintf(w, "%s  %-15s %s(%d)  %s\n",
			colorize(colorDim, e.CreatedAt.Local().Format(storage.CSVTimeLayout)),
			kind, e.Username, e.UserID, e.Text)
	}
	return nil
}

func openEvents() (*storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func init() {
	logsExportCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	logsTailCmd.Flags().Int("limit", 20, "maximum number of events to show")
	logsTailCmd.Flags().String("kind", "", "only show events of this kind (e.g. ERROR)")
	logsCmd.AddCommand(logsExportCmd)
	logsCmd.AddCommand(logsTailCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return showConfig(cmd.OutOrStdout(), cfg, asYAML)
	},
}

func showConfig(w io.Writer, cfg config.Config, asYAML bool) error {
	keys := config.ShowAll(cfg)
	if asYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(keys); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return enc.Close()
	}
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "$"+k.EnvVar))
	}
	return nil
}

func init() {
	configShowCmd.Flags().Bool("yaml", false, "print as YAML")
	configCmd.AddCommand(configShowCmd)
}
