package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTrackCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Refreshes the barcode tracking list",
		Long: `Fetches only the product pages on the curated barcode tracking
list, regardless of how recently they were scraped. Intended for a
tighter schedule than the full catalog scrape.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			only, err := parseSource(source)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			defer a.Close()

			if err := a.Orchestrator.RunTracking(cmd.Context(), only); err != nil {
				return fmt.Errorf("run tracking: %w", err)
			}
			a.Logger.Info("tracking finished", zap.String("source", source))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "limit tracking to one source")
	return cmd
}
