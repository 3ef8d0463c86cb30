// Package pharma defines core types shared across subsystems.
package pharma

import (
	"time"
)

// Source identifies one external pharmacy site being crawled.
type Source string

// Known pharmacy sources.
const (
	SourcePuntoFarma       Source = "punto_farma"
	SourceFarmaOliva       Source = "farma_oliva"
	SourceFarmaCenter      Source = "farmacia_center"
	SourceFarmaciaCatedral Source = "farmacia_catedral"
)

// KnownSources lists every source the crawler ships an adapter for.
func KnownSources() []Source {
	return []Source{
		SourcePuntoFarma,
		SourceFarmaOliva,
		SourceFarmaCenter,
		SourceFarmaciaCatedral,
	}
}

// RunPhase distinguishes the independent phases of a crawl cycle.
type RunPhase string

// Run phase values persisted in the run ledger.
const (
	PhaseDiscovery RunPhase = "discovery"
	PhaseDetail    RunPhase = "detail"
	PhaseTracking  RunPhase = "tracking"
)

// RunStatus represents the lifecycle state of a crawl run.
type RunStatus string

// Run status values persisted in the run ledger.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// RunCounters tracks per-run item outcomes.
type RunCounters struct {
	Attempted int `json:"items_attempted"`
	Succeeded int `json:"items_succeeded"`
	Failed    int `json:"items_failed"`
}

// Run represents one orchestrator phase invocation recorded in the ledger.
type Run struct {
	ID        string      `json:"id"`
	Source    Source      `json:"source"`
	Phase     RunPhase    `json:"phase"`
	Status    RunStatus   `json:"status"`
	Started   time.Time   `json:"started_at"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	Counters  RunCounters `json:"counters"`
	ErrorText string      `json:"error_text,omitempty"`
}

// CatalogEntry is one known (source, url) pair with fetch-freshness state.
type CatalogEntry struct {
	Source        Source     `json:"source"`
	URL           string     `json:"url"`
	SiteCode      string     `json:"site_code,omitempty"`
	Barcode       string     `json:"barcode,omitempty"`
	FirstSeen     time.Time  `json:"first_seen_at"`
	LastAttempt   *time.Time `json:"last_fetch_attempt_at,omitempty"`
	LastSuccess   *time.Time `json:"last_fetch_success_at,omitempty"`
}

// DiscoveredURL is one URL emitted by an adapter's discovery pass,
// along with identity hints that were cheap to extract.
type DiscoveredURL struct {
	URL      string
	SiteCode string
	Barcode  string
}

// WorkItem is one detail fetch queued for the worker pool.
type WorkItem struct {
	Source   Source
	URL      string
	SiteCode string
}

// Product is the latest normalized truth for one (source, site_code) key.
type Product struct {
	Source   Source `json:"pharmacy_source"`
	SiteCode string `json:"site_code"`
	Barcode  string `json:"barcode,omitempty"`

	Name         string   `json:"product_name"`
	Brand        string   `json:"brand,omitempty"`
	Description  string   `json:"product_description,omitempty"`
	CategoryPath []string `json:"category_path,omitempty"`
	MainCategory string   `json:"main_category,omitempty"`

	CurrentPrice       float64  `json:"current_price"`
	OriginalPrice      *float64 `json:"original_price,omitempty"`
	DiscountPercentage *float64 `json:"discount_percentage,omitempty"`
	DiscountAmount     *float64 `json:"discount_amount,omitempty"`
	BankDiscountPrice  *float64 `json:"bank_discount_price,omitempty"`
	BankDiscountBank   string   `json:"bank_discount_bank_name,omitempty"`

	RequiresPrescription bool   `json:"requires_prescription"`
	PaymentMethods       string `json:"payment_methods,omitempty"`
	ShippingOptions      string `json:"shipping_options,omitempty"`
	ImageURL             string `json:"image_url,omitempty"`

	SourceURL string    `json:"product_url"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// Key returns the unique identity of the product within its source.
func (p *Product) Key() ProductKey {
	return ProductKey{Source: p.Source, SiteCode: p.SiteCode}
}

// ProductKey identifies a product row across catalog and store.
type ProductKey struct {
	Source   Source
	SiteCode string
}

// PriceChange records one observed price transition for a product key.
type PriceChange struct {
	Source    Source    `json:"pharmacy_source"`
	SiteCode  string    `json:"site_code"`
	OldPrice  float64   `json:"old_price"`
	NewPrice  float64   `json:"new_price"`
	ChangedAt time.Time `json:"changed_at"`
}
