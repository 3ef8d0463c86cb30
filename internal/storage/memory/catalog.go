// Package memory provides in-memory store implementations for
// development and testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

type catalogKey struct {
	source pharma.Source
	url    string
}

// Catalog is an in-memory pharma.Catalog implementation.
type Catalog struct {
	mu      sync.RWMutex
	entries map[catalogKey]pharma.CatalogEntry
	clock   pharma.Clock

	// products lets the catalog answer staleness queries; wired to the
	// memory ProductStore in tests and local runs.
	products *ProductStore
}

// NewCatalog constructs a Catalog. The product store may be nil, in
// which case every entry is treated as never scraped.
func NewCatalog(clock pharma.Clock, products *ProductStore) *Catalog {
	return &Catalog{
		entries:  make(map[catalogKey]pharma.CatalogEntry),
		clock:    clock,
		products: products,
	}
}

// RecordDiscovered inserts the entry if absent; re-discovery is a no-op
// apart from seeding missing identity hints.
func (c *Catalog) RecordDiscovered(_ context.Context, source pharma.Source, url pharma.DiscoveredURL) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := catalogKey{source: source, url: url.URL}
	entry, exists := c.entries[key]
	if !exists {
		c.entries[key] = pharma.CatalogEntry{
			Source:    source,
			URL:       url.URL,
			SiteCode:  url.SiteCode,
			Barcode:   url.Barcode,
			FirstSeen: c.clock.Now(),
		}
		return nil
	}
	if entry.SiteCode == "" {
		entry.SiteCode = url.SiteCode
	}
	if entry.Barcode == "" {
		entry.Barcode = url.Barcode
	}
	c.entries[key] = entry
	return nil
}

// ListFetchCandidates returns entries whose product is missing, stale,
// or whose last fetch attempt failed.
func (c *Catalog) ListFetchCandidates(ctx context.Context, source pharma.Source, stalenessBefore time.Time) ([]pharma.CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []pharma.CatalogEntry
	for key, entry := range c.entries {
		if key.source != source {
			continue
		}
		if c.isCandidate(ctx, entry, stalenessBefore) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (c *Catalog) isCandidate(ctx context.Context, entry pharma.CatalogEntry, stalenessBefore time.Time) bool {
	// Failed last attempt: attempted but never succeeded, or the last
	// success predates the last attempt.
	if entry.LastAttempt != nil &&
		(entry.LastSuccess == nil || entry.LastSuccess.Before(*entry.LastAttempt)) {
		return true
	}
	// Without a site code the product row cannot be consulted, so the
	// catalog's own success timestamp stands in for product freshness.
	if c.products == nil || entry.SiteCode == "" {
		return entry.LastSuccess == nil || entry.LastSuccess.Before(stalenessBefore)
	}
	p, err := c.products.Get(ctx, pharma.ProductKey{Source: entry.Source, SiteCode: entry.SiteCode})
	if err != nil {
		return true // no product yet
	}
	return p.ScrapedAt.Before(stalenessBefore)
}

// MarkAttempt records a detail fetch attempt.
func (c *Catalog) MarkAttempt(_ context.Context, source pharma.Source, url string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := catalogKey{source: source, url: url}
	entry, ok := c.entries[key]
	if !ok {
		return pharma.ErrNotFound
	}
	entry.LastAttempt = &at
	c.entries[key] = entry
	return nil
}

// MarkSuccess records a successful detail fetch.
func (c *Catalog) MarkSuccess(_ context.Context, source pharma.Source, url string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := catalogKey{source: source, url: url}
	entry, ok := c.entries[key]
	if !ok {
		return pharma.ErrNotFound
	}
	entry.LastSuccess = &at
	c.entries[key] = entry
	return nil
}

// Len reports the number of known entries (test helper).
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Get returns the stored entry (test helper).
func (c *Catalog) Get(source pharma.Source, url string) (pharma.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[catalogKey{source: source, url: url}]
	return entry, ok
}
