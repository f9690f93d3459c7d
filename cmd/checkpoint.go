package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-scraper/internal/app"
	"github.com/JakeFAU/catalog-scraper/internal/checkpoint"
	"github.com/JakeFAU/catalog-scraper/internal/config"
)

// newCheckpointCmd groups the checkpoint maintenance subcommands.
func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspects or resets the resume checkpoint",
	}
	cmd.AddCommand(newCheckpointShowCmd())
	cmd.AddCommand(newCheckpointResetCmd())
	return cmd
}

func newCheckpointShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Prints checkpoint counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCheckpoint()
			if err != nil {
				return err
			}
			if err := store.Load(cmd.Context()); err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), store.Path(), store.State())
			return nil
		},
	}
}

func newCheckpointResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Deletes the checkpoint so the next scrape starts over",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCheckpoint()
			if err != nil {
				return err
			}
			if err := store.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s removed\n", store.Path())
			return nil
		},
	}
}

// openCheckpoint only needs the checkpoint filename, so the configuration is
// read without scrape validation.
func openCheckpoint() (*checkpoint.Store, error) {
	cfg, err := config.Read(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.OpenCheckpoint(cfg, nil)
}

func printState(w io.Writer, path string, st checkpoint.State) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(path)

	t.AppendHeader(table.Row{"Metric", "Count"})
	t.AppendRows([]table.Row{
		{"discovered", st.DiscoveredTotal},
		{"processed", len(st.Processed)},
		{"failed", len(st.Failed)},
		{"records", len(st.Records)},
	})

	byKind := map[string]int{}
	for _, reason := range st.FailureReasons {
		kind, _, _ := strings.Cut(reason, ":")
		byKind[kind]++
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	if len(kinds) > 0 {
		t.AppendSeparator()
	}
	for _, k := range kinds {
		t.AppendRow(table.Row{"failed (" + k + ")", byKind[k]})
	}
	t.Render()

	if !st.SavedAt.IsZero() {
		fmt.Fprintf(w, "saved at %s\n", st.SavedAt.Format(time.RFC3339))
	}
}
