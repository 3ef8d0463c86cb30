// Package orchestrator drives the crawl phases and records each run in
// the ledger.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
	"github.com/pharmintel/pricewatch/internal/scheduler"
	"github.com/pharmintel/pricewatch/internal/telemetry"
	"github.com/pharmintel/pricewatch/internal/worker"
)

// Orchestrator owns the discovery, detail, and tracking phases. Each
// phase is an independent entry point so operators can run them on
// separate schedules.
type Orchestrator struct {
	adapters  map[pharma.Source]pharma.Adapter
	catalog   pharma.Catalog
	ledger    pharma.RunLedger
	scheduler *scheduler.Scheduler
	pool      *worker.Pool
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(
	adapters map[pharma.Source]pharma.Adapter,
	catalog pharma.Catalog,
	ledger pharma.RunLedger,
	sched *scheduler.Scheduler,
	pool *worker.Pool,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		adapters:  adapters,
		catalog:   catalog,
		ledger:    ledger,
		scheduler: sched,
		pool:      pool,
		logger:    logger,
	}
}

// RunDiscovery enumerates product URLs for every selected source and
// records them in the catalog. Each source gets its own ledger row so a
// broken site never hides the health of the others.
func (o *Orchestrator) RunDiscovery(ctx context.Context, only pharma.Source) error {
	var firstErr error
	for _, source := range o.selectSources(only) {
		if err := o.discoverSource(ctx, source); err != nil {
			o.logger.Error("discovery failed",
				zap.String("source", string(source)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (o *Orchestrator) discoverSource(ctx context.Context, source pharma.Source) error {
	adapter, ok := o.adapters[source]
	if !ok {
		return fmt.Errorf("no adapter registered for %s", source)
	}

	run, err := o.ledger.StartRun(ctx, source, pharma.PhaseDiscovery)
	if err != nil {
		return fmt.Errorf("start discovery run: %w", err)
	}

	var counters pharma.RunCounters
	discoverErr := adapter.Discover(ctx, func(url pharma.DiscoveredURL) error {
		counters.Attempted++
		if err := o.catalog.RecordDiscovered(ctx, source, url); err != nil {
			counters.Failed++
			return fmt.Errorf("record discovered url: %w", err)
		}
		counters.Succeeded++
		telemetry.ObserveDiscoveredURL(string(source))
		return nil
	})

	status := pharma.RunStatusCompleted
	errText := ""
	if discoverErr != nil {
		status = pharma.RunStatusFailed
		errText = discoverErr.Error()
	}
	if err := o.ledger.CompleteRun(ctx, run.ID, status, counters, errText); err != nil {
		return fmt.Errorf("complete discovery run: %w", err)
	}
	telemetry.ObserveRun(string(pharma.PhaseDiscovery), string(status))

	o.logger.Info("discovery run finished",
		zap.String("source", string(source)),
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("urls", counters.Succeeded),
	)
	return discoverErr
}

// DetailConfig controls one detail run.
type DetailConfig struct {
	Source          pharma.Source
	MaxItems        int
	IncludeTracking bool

	// StalenessBefore overrides the refresh threshold. Zero keeps the
	// scheduler default of the start of the current day.
	StalenessBefore time.Time
}

// RunDetail builds the work set from the catalog and processes it with
// the worker pool, recording the outcome per source.
func (o *Orchestrator) RunDetail(ctx context.Context, cfg DetailConfig) error {
	items, err := o.scheduler.BuildWorkSet(ctx, scheduler.Config{
		Source:          cfg.Source,
		MaxItems:        cfg.MaxItems,
		IncludeTracking: cfg.IncludeTracking,
		StalenessBefore: cfg.StalenessBefore,
	})
	if err != nil {
		return fmt.Errorf("build work set: %w", err)
	}

	var firstErr error
	for source, sourceItems := range splitBySource(items) {
		if err := o.runDetailForSource(ctx, source, sourceItems); err != nil {
			o.logger.Error("detail run failed",
				zap.String("source", string(source)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (o *Orchestrator) runDetailForSource(ctx context.Context, source pharma.Source, items []pharma.WorkItem) error {
	run, err := o.ledger.StartRun(ctx, source, pharma.PhaseDetail)
	if err != nil {
		return fmt.Errorf("start detail run: %w", err)
	}

	counters, poolErr := o.pool.Run(ctx, items)

	status := pharma.RunStatusCompleted
	errText := ""
	if poolErr != nil {
		status = pharma.RunStatusFailed
		errText = poolErr.Error()
	}
	if err := o.ledger.CompleteRun(ctx, run.ID, status, counters, errText); err != nil {
		return fmt.Errorf("complete detail run: %w", err)
	}
	telemetry.ObserveRun(string(pharma.PhaseDetail), string(status))

	o.logger.Info("detail run finished",
		zap.String("source", string(source)),
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("attempted", counters.Attempted),
		zap.Int("succeeded", counters.Succeeded),
		zap.Int("failed", counters.Failed),
	)
	return poolErr
}

// RunTracking processes only the targeted tracking list, refreshing the
// tracked products regardless of catalog staleness.
func (o *Orchestrator) RunTracking(ctx context.Context, only pharma.Source) error {
	var firstErr error
	for _, source := range o.selectSources(only) {
		if err := o.trackSource(ctx, source); err != nil {
			o.logger.Error("tracking run failed",
				zap.String("source", string(source)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (o *Orchestrator) trackSource(ctx context.Context, source pharma.Source) error {
	items, err := o.scheduler.BuildTrackingSet(ctx, source)
	if err != nil {
		return fmt.Errorf("build tracking set: %w", err)
	}
	if len(items) == 0 {
		o.logger.Debug("no tracking items", zap.String("source", string(source)))
		return nil
	}

	run, err := o.ledger.StartRun(ctx, source, pharma.PhaseTracking)
	if err != nil {
		return fmt.Errorf("start tracking run: %w", err)
	}

	counters, poolErr := o.pool.Run(ctx, items)

	status := pharma.RunStatusCompleted
	errText := ""
	if poolErr != nil {
		status = pharma.RunStatusFailed
		errText = poolErr.Error()
	}
	if err := o.ledger.CompleteRun(ctx, run.ID, status, counters, errText); err != nil {
		return fmt.Errorf("complete tracking run: %w", err)
	}
	telemetry.ObserveRun(string(pharma.PhaseTracking), string(status))
	return poolErr
}

func (o *Orchestrator) selectSources(only pharma.Source) []pharma.Source {
	if only != "" {
		return []pharma.Source{only}
	}
	sources := make([]pharma.Source, 0, len(o.adapters))
	for _, s := range pharma.KnownSources() {
		if _, ok := o.adapters[s]; ok {
			sources = append(sources, s)
		}
	}
	return sources
}

func splitBySource(items []pharma.WorkItem) map[pharma.Source][]pharma.WorkItem {
	out := make(map[pharma.Source][]pharma.WorkItem)
	for _, item := range items {
		out[item.Source] = append(out[item.Source], item)
	}
	return out
}
