// Package cmd defines and implements the CLI commands for the
// pricewatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pharmintel/pricewatch/internal/app"
	"github.com/pharmintel/pricewatch/internal/config"
	"github.com/pharmintel/pricewatch/internal/pharma"
)

var cfgFile string

type cfgKeyType struct{}

var cfgKey cfgKeyType

// newApp is the application factory. It is a variable so tests can
// swap in a factory that returns a pre-wired in-memory app.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricewatch",
		Short: "Collects medicine prices from Paraguayan pharmacy sites",
		Long: `pricewatch discovers product pages on the supported pharmacy
sites, fetches and parses their detail pages, and records prices and
price changes. Discovery, detail scraping, and barcode tracking run as
separate subcommands so each can be scheduled independently.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default relies on PRICEWATCH_* environment variables)")

	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newTrackCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point. A SIGINT or SIGTERM cancels the
// command context; long phases stop dispatching and settle their
// ledger rows before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not initialized")
	}
	return cfg, nil
}

// parseSource validates an optional --source flag value. Empty means
// every source with a registered adapter.
func parseSource(raw string) (pharma.Source, error) {
	if raw == "" {
		return "", nil
	}
	source := pharma.Source(raw)
	for _, known := range pharma.KnownSources() {
		if source == known {
			return source, nil
		}
	}
	return "", fmt.Errorf("unknown source %q (known: %v)", raw, pharma.KnownSources())
}
