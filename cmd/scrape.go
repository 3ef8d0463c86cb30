package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/orchestrator"
)

func newScrapeCmd() *cobra.Command {
	var (
		source          string
		maxItems        int
		concurrency     int
		includeTracking bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetches and parses product detail pages",
		Long: `Selects the catalog entries that have not been refreshed today,
fetches each product page, parses name, codes, and prices, and upserts
the result. Price changes against the previous stored price are
published as events.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			only, err := parseSource(source)
			if err != nil {
				return err
			}
			if maxItems > 0 {
				cfg.Crawl.MaxItems = maxItems
			}
			if concurrency > 0 {
				cfg.Crawl.Concurrency = concurrency
			}
			if includeTracking {
				cfg.Crawl.IncludeTracking = true
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			defer a.Close()

			started := time.Now()
			err = a.Orchestrator.RunDetail(cmd.Context(), orchestrator.DetailConfig{
				Source:          only,
				MaxItems:        cfg.Crawl.MaxItems,
				IncludeTracking: cfg.Crawl.IncludeTracking,
				StalenessBefore: cfg.StalenessBefore(a.Clock.Now()),
			})
			if err != nil {
				return fmt.Errorf("run scrape: %w", err)
			}
			a.Logger.Info("scrape finished",
				zap.String("source", source),
				zap.Duration("elapsed", time.Since(started)),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "limit scraping to one source")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "cap the number of pages fetched (0 = no cap)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override worker concurrency")
	cmd.Flags().BoolVar(&includeTracking, "include-tracking", false, "also fetch the barcode tracking list")
	return cmd
}
