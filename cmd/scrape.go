package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/app"
	"github.com/JakeFAU/catalog-scraper/internal/config"
)

// newScrapeCmd creates the 'scrape' subcommand.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Discovers and extracts products, resuming from the checkpoint",
		Long: `Loads the listing page, collects the product links and extracts every
product the checkpoint has not recorded yet. SIGINT or SIGTERM stops the run
after the current progress is saved.`,
		Args: cobra.NoArgs,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	sum, err := a.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	if sum.Interrupted {
		a.Logger().Warn("scrape interrupted; rerun to resume",
			zap.Int("processed", sum.Processed),
			zap.Int("remaining", sum.Remaining-sum.Dispatched),
		)
	}
	return nil
}
