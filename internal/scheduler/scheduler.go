// Package scheduler turns catalog state into a bounded work set for one
// detail-phase run.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// Config controls work set construction.
type Config struct {
	// Source restricts the run to a single pharmacy when set.
	Source pharma.Source

	// MaxItems caps the work set size when > 0 (bounded test runs).
	MaxItems int

	// StalenessBefore is the refresh threshold: products scraped before
	// this instant are re-fetched. Defaults to the start of the current
	// day when zero.
	StalenessBefore time.Time

	// IncludeTracking merges the targeted tracking list into the work set.
	IncludeTracking bool
}

// Scheduler computes the detail-fetch work set. It is stateless between
// invocations: all persistent state lives in the catalog and store, so
// re-running after a crash simply recomputes the remaining work.
type Scheduler struct {
	catalog  pharma.Catalog
	tracking pharma.TrackingList
	clock    pharma.Clock
	logger   *zap.Logger
}

// New constructs a Scheduler. tracking may be nil when the deployment
// has no targeted tracking table.
func New(catalog pharma.Catalog, tracking pharma.TrackingList, clock pharma.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		catalog:  catalog,
		tracking: tracking,
		clock:    clock,
		logger:   logger,
	}
}

// BuildWorkSet computes the de-duplicated list of detail fetches for the
// selected sources.
func (s *Scheduler) BuildWorkSet(ctx context.Context, cfg Config) ([]pharma.WorkItem, error) {
	sources := pharma.KnownSources()
	if cfg.Source != "" {
		sources = []pharma.Source{cfg.Source}
	}

	threshold := cfg.StalenessBefore
	if threshold.IsZero() {
		threshold = s.clock.Now().Truncate(24 * time.Hour)
	}

	seen := make(map[pharma.WorkItem]bool)
	var items []pharma.WorkItem

	add := func(item pharma.WorkItem) bool {
		key := pharma.WorkItem{Source: item.Source, URL: item.URL}
		if seen[key] {
			return true
		}
		seen[key] = true
		items = append(items, item)
		return cfg.MaxItems <= 0 || len(items) < cfg.MaxItems
	}

	for _, source := range sources {
		candidates, err := s.catalog.ListFetchCandidates(ctx, source, threshold)
		if err != nil {
			return nil, fmt.Errorf("list fetch candidates for %s: %w", source, err)
		}
		s.logger.Debug("catalog candidates",
			zap.String("source", string(source)),
			zap.Int("count", len(candidates)),
		)
		for _, c := range candidates {
			if !add(pharma.WorkItem{Source: c.Source, URL: c.URL, SiteCode: c.SiteCode}) {
				return items, nil
			}
		}

		if !cfg.IncludeTracking || s.tracking == nil {
			continue
		}
		tracked, err := s.tracking.ListTrackingItems(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("list tracking items for %s: %w", source, err)
		}
		for _, item := range tracked {
			if !add(item) {
				return items, nil
			}
		}
	}

	s.logger.Info("work set built",
		zap.Int("items", len(items)),
		zap.Time("staleness_before", threshold),
	)
	return items, nil
}

// BuildTrackingSet returns the de-duplicated targeted tracking list for
// one source, independent of catalog staleness.
func (s *Scheduler) BuildTrackingSet(ctx context.Context, source pharma.Source) ([]pharma.WorkItem, error) {
	if s.tracking == nil {
		return nil, nil
	}
	tracked, err := s.tracking.ListTrackingItems(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("list tracking items for %s: %w", source, err)
	}

	seen := make(map[string]bool, len(tracked))
	items := make([]pharma.WorkItem, 0, len(tracked))
	for _, item := range tracked {
		if seen[item.URL] {
			continue
		}
		seen[item.URL] = true
		items = append(items, item)
	}
	return items, nil
}
