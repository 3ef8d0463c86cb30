// Package adapter implements per-pharmacy scraping of product listings
// and detail pages.
package adapter

import (
	"time"

	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// Config controls shared adapter behavior.
type Config struct {
	UserAgent string

	// Headless runs the discovery browser without a window. Turn it off
	// locally to watch a listing page load.
	Headless bool

	// FetchTimeout bounds plain HTTP fetches.
	FetchTimeout time.Duration

	// NavigationTimeout bounds a single headless page load.
	NavigationTimeout time.Duration

	// DiscoveryTimeout bounds a full discovery pass over one source. The
	// JS-driven listings take many load-more clicks or scrolls to
	// exhaust, so this is measured in hours, not seconds.
	DiscoveryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = 4 * time.Hour
	}
	return c
}

// Build constructs every shipped adapter, keyed by source.
func Build(cfg Config, logger *zap.Logger) map[pharma.Source]pharma.Adapter {
	cfg = cfg.withDefaults()
	fetcher := newFetcher(cfg)
	browser := newBrowser(cfg)

	return map[pharma.Source]pharma.Adapter{
		pharma.SourcePuntoFarma:       newPuntoFarma(cfg, browser, logger),
		pharma.SourceFarmaOliva:       newFarmaOliva(cfg, fetcher, logger),
		pharma.SourceFarmaCenter:      newFarmaCenter(cfg, fetcher, browser, logger),
		pharma.SourceFarmaciaCatedral: newFarmaciaCatedral(cfg, fetcher, browser, logger),
	}
}
