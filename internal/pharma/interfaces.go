package pharma

import (
	"context"
	"time"
)

// Adapter is the per-source scraping capability. One implementation
// exists per pharmacy site; orchestration code never branches on the
// concrete source.
type Adapter interface {
	// Source reports which pharmacy this adapter scrapes.
	Source() Source

	// Discover enumerates candidate product URLs, calling emit for each.
	// Re-invocation from scratch is always safe: the catalog treats
	// repeated discoveries as no-ops.
	Discover(ctx context.Context, emit func(DiscoveredURL) error) error

	// FetchDetail loads one product page and returns the normalized
	// product plus the raw page body for optional snapshot archival.
	// Failure modes follow the taxonomy in errors.go: ErrNotFound for a
	// vanished page, TransientError for network trouble, ExtractionError
	// for a structural mismatch.
	FetchDetail(ctx context.Context, url string) (*Product, []byte, error)
}

// Catalog is the durable registry of every known (source, url) pair.
type Catalog interface {
	// RecordDiscovered inserts the entry if absent. Existing entries keep
	// their freshness fields; identity hints are seeded only when the
	// stored row lacks them.
	RecordDiscovered(ctx context.Context, source Source, url DiscoveredURL) error

	// ListFetchCandidates returns every entry for source whose product is
	// missing, stale relative to stalenessBefore, or whose last fetch
	// attempt failed. The result contains no duplicates; ordering is
	// unspecified.
	ListFetchCandidates(ctx context.Context, source Source, stalenessBefore time.Time) ([]CatalogEntry, error)

	// MarkAttempt records that a detail fetch was attempted at the given time.
	MarkAttempt(ctx context.Context, source Source, url string, at time.Time) error

	// MarkSuccess records a successful detail fetch.
	MarkSuccess(ctx context.Context, source Source, url string, at time.Time) error
}

// ProductStore owns product rows and their derived price history.
type ProductStore interface {
	// Upsert writes the latest truth for the product's key. It reports
	// the price change and true when the stored current_price differed
	// from the incoming one; the first insert never reports a change.
	// The read-old-price-then-write step is atomic per key.
	Upsert(ctx context.Context, p *Product) (PriceChange, bool, error)

	// Get returns the stored product for the key, or ErrNotFound.
	Get(ctx context.Context, key ProductKey) (*Product, error)

	// PriceHistory returns the recorded price changes for the key,
	// oldest first.
	PriceHistory(ctx context.Context, key ProductKey) ([]PriceChange, error)
}

// RunLedger records each orchestrator phase invocation.
type RunLedger interface {
	StartRun(ctx context.Context, source Source, phase RunPhase) (Run, error)
	CompleteRun(ctx context.Context, runID string, status RunStatus, counters RunCounters, errText string) error

	// ReconcileAbandoned marks dangling "running" rows aborted. Called on
	// startup so a crashed run does not confuse monitoring.
	ReconcileAbandoned(ctx context.Context) (int, error)

	ListRecent(ctx context.Context, limit int) ([]Run, error)
}

// TrackingList is the separately maintained URL set for targeted daily
// tracking of known barcodes.
type TrackingList interface {
	ListTrackingItems(ctx context.Context, source Source) ([]WorkItem, error)
}

// SnapshotStore archives raw fetched pages and returns a URI.
type SnapshotStore interface {
	Save(ctx context.Context, path string, contentType string, body []byte) (string, error)
}

// Publisher pushes price-change events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
