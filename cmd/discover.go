package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDiscoverCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discovers product URLs from the category listings",
		Long: `Walks the category listings of each pharmacy site and records
every product URL in the catalog. New URLs are picked up by the next
scrape run; URLs already known keep their fetch history.`,
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

			if err := a.Orchestrator.RunDiscovery(cmd.Context(), only); err != nil {
				return fmt.Errorf("run discovery: %w", err)
			}
			a.Logger.Info("discovery finished", zap.String("source", source))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "limit discovery to one source")
	return cmd
}
