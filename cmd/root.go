// Package cmd defines the CLI commands for the catalog-scraper executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog-scraper",
		Short: "Scrapes structured product data from a catalog listing.",
		Long: `catalog-scraper discovers the product pages linked from a catalog listing,
renders each page and extracts its title, category breadcrumb, brand and
specifications. Progress is checkpointed after every batch so an interrupted
run resumes where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON); SCRAPER_* env vars override it")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newCheckpointCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "catalog-scraper: %v\n", err)
		os.Exit(1)
	}
}
