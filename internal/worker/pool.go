// Package worker executes detail fetches over a bounded goroutine pool.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
	"github.com/pharmintel/pricewatch/internal/ratelimit"
	"github.com/pharmintel/pricewatch/internal/snapshot"
	"github.com/pharmintel/pricewatch/internal/telemetry"
)

// Config controls Pool behavior.
type Config struct {
	// Concurrency is the number of pool goroutines.
	Concurrency int

	// MaxRetries is the number of additional attempts after the first
	// for transient failures.
	MaxRetries int

	// ItemTimeout bounds each individual fetch attempt.
	ItemTimeout time.Duration

	// SnapshotPrefix prefixes archived page paths. Snapshots are skipped
	// entirely when no snapshot store is wired.
	SnapshotPrefix string

	// SnapshotContentType is stored alongside each archived page.
	SnapshotContentType string

	// Topic names the price-change event topic. Empty disables publishing.
	Topic string
}

// Pool consumes work items and runs the fetch-extract-persist pipeline
// for each.
type Pool struct {
	adapters  map[pharma.Source]pharma.Adapter
	catalog   pharma.Catalog
	products  pharma.ProductStore
	snapshots pharma.SnapshotStore
	publisher pharma.Publisher
	limiter   *ratelimit.Limiter
	clock     pharma.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Pool. snapshots and publisher may be nil.
func New(
	adapters map[pharma.Source]pharma.Adapter,
	catalog pharma.Catalog,
	products pharma.ProductStore,
	snapshots pharma.SnapshotStore,
	publisher pharma.Publisher,
	limiter *ratelimit.Limiter,
	clock pharma.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 30 * time.Second
	}
	if cfg.SnapshotContentType == "" {
		cfg.SnapshotContentType = "text/html; charset=utf-8"
	}
	return &Pool{
		adapters:  adapters,
		catalog:   catalog,
		products:  products,
		snapshots: snapshots,
		publisher: publisher,
		limiter:   limiter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run processes every item and returns the aggregated counters. A
// canceled ctx stops new items from being dispatched, but attempts
// already in flight finish within their own timeout so their results
// are never lost mid-write. A PersistenceError stops the run early and
// is returned alongside the counters accumulated so far.
func (p *Pool) Run(ctx context.Context, items []pharma.WorkItem) (pharma.RunCounters, error) {
	work := make(chan pharma.WorkItem)
	results := make(chan itemResult, p.cfg.Concurrency)

	// Set at the moment a persistence write fails. Workers keep
	// receiving so the feeder never blocks, but queued items are
	// discarded instead of processed against a dead store.
	var stopping atomic.Bool

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				if stopping.Load() {
					continue
				}
				res := p.processItem(ctx, item)
				if pharma.IsPersistence(res.err) {
					stopping.Store(true)
				}
				results <- res
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(work)
		for _, item := range items {
			select {
			case work <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	var counters pharma.RunCounters
	var fatal error
	for res := range results {
		counters.Attempted++
		if res.err == nil {
			counters.Succeeded++
			continue
		}
		counters.Failed++
		if fatal == nil && pharma.IsPersistence(res.err) {
			fatal = res.err
		}
	}
	return counters, fatal
}

type itemResult struct {
	item pharma.WorkItem
	err  error
}

// processItem runs one item through rate limiting, the retry loop, and
// persistence. Each attempt gets its own deadline detached from the
// run context so graceful shutdown lets in-flight work complete.
func (p *Pool) processItem(ctx context.Context, item pharma.WorkItem) itemResult {
	adapter, ok := p.adapters[item.Source]
	if !ok {
		p.logger.Error("no adapter registered",
			zap.String("source", string(item.Source)),
			zap.String("url", item.URL),
		)
		p.recordFailure(ctx, item)
		return itemResult{item: item, err: errors.New("no adapter registered")}
	}

	if err := p.limiter.Wait(ctx, item.Source); err != nil {
		p.recordFailure(ctx, item)
		return itemResult{item: item, err: err}
	}

	product, body, err := p.fetchWithRetry(ctx, adapter, item)
	if err != nil {
		p.logger.Warn("detail fetch failed",
			zap.String("source", string(item.Source)),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		p.recordFailure(ctx, item)
		return itemResult{item: item, err: err}
	}

	if err := p.persist(ctx, item, product, body); err != nil {
		p.logger.Error("persist product failed",
			zap.String("source", string(item.Source)),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		p.recordFailure(ctx, item)
		return itemResult{item: item, err: err}
	}

	// Some listings expose no site code, so the catalog entry only
	// learns its identity from the parsed detail page. Backfilling here
	// lets staleness checks join against the product row next run.
	if product.SiteCode != "" && product.SiteCode != item.SiteCode {
		if err := p.catalog.RecordDiscovered(ctx, item.Source, pharma.DiscoveredURL{
			URL:      item.URL,
			SiteCode: product.SiteCode,
			Barcode:  product.Barcode,
		}); err != nil {
			p.logger.Warn("backfill site code failed",
				zap.String("source", string(item.Source)),
				zap.String("url", item.URL),
				zap.Error(err),
			)
		}
	}

	if err := p.catalog.MarkSuccess(ctx, item.Source, item.URL, p.clock.Now()); err != nil {
		p.logger.Error("mark success failed",
			zap.String("source", string(item.Source)),
			zap.String("url", item.URL),
			zap.Error(err),
		)
	}
	telemetry.ObserveItem(string(item.Source), "success")
	return itemResult{item: item}
}

func (p *Pool) fetchWithRetry(ctx context.Context, adapter pharma.Adapter, item pharma.WorkItem) (*pharma.Product, []byte, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return nil, nil, pharma.Transient(ctx.Err())
			}
			telemetry.ObserveRetry(string(item.Source))
			p.logger.Debug("retrying detail fetch",
				zap.String("url", item.URL),
				zap.Int("attempt", attempt+1),
			)
		}

		product, body, err := p.fetchOnce(ctx, adapter, item.URL)
		if err == nil {
			return product, body, nil
		}
		lastErr = err
		if !pharma.IsTransient(err) {
			return nil, nil, err
		}
	}
	return nil, nil, lastErr
}

func (p *Pool) fetchOnce(ctx context.Context, adapter pharma.Adapter, url string) (*pharma.Product, []byte, error) {
	// Detached from run cancellation: once an attempt starts it runs to
	// its own deadline, so a shutdown mid-fetch still yields a stored
	// result instead of a half-done item.
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ItemTimeout)
	defer cancel()

	telemetry.FetchStarted()
	defer telemetry.FetchFinished()

	product, body, err := adapter.FetchDetail(attemptCtx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !pharma.IsTransient(err) {
			return nil, nil, pharma.Transient(err)
		}
		return nil, nil, err
	}
	return product, body, nil
}

func (p *Pool) persist(ctx context.Context, item pharma.WorkItem, product *pharma.Product, body []byte) error {
	if product.ScrapedAt.IsZero() {
		product.ScrapedAt = p.clock.Now()
	}
	if p.snapshots != nil && len(body) > 0 {
		path := snapshot.ObjectPath(p.cfg.SnapshotPrefix, string(item.Source), product.ScrapedAt, body)
		if _, err := p.snapshots.Save(ctx, path, p.cfg.SnapshotContentType, body); err != nil {
			// Archival is best effort: losing a raw page never blocks
			// the normalized write.
			p.logger.Warn("snapshot save failed",
				zap.String("url", item.URL),
				zap.Error(err),
			)
		}
	}

	change, changed, err := p.products.Upsert(ctx, product)
	if err != nil {
		return &pharma.PersistenceError{Op: "upsert product", Err: err}
	}
	if changed {
		telemetry.ObservePriceChange(string(item.Source))
		p.logger.Info("price changed",
			zap.String("source", string(item.Source)),
			zap.String("site_code", product.SiteCode),
			zap.Float64("old_price", change.OldPrice),
			zap.Float64("new_price", change.NewPrice),
		)
		p.publishChange(ctx, change)
	}
	return nil
}

func (p *Pool) publishChange(ctx context.Context, change pharma.PriceChange) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, change); err != nil {
		p.logger.Warn("publish price change failed",
			zap.String("source", string(change.Source)),
			zap.String("site_code", change.SiteCode),
			zap.Error(err),
		)
	}
}

func (p *Pool) recordFailure(ctx context.Context, item pharma.WorkItem) {
	telemetry.ObserveItem(string(item.Source), "failure")
	if err := p.catalog.MarkAttempt(ctx, item.Source, item.URL, p.clock.Now()); err != nil {
		p.logger.Error("mark attempt failed",
			zap.String("source", string(item.Source)),
			zap.String("url", item.URL),
			zap.Error(err),
		)
	}
}
