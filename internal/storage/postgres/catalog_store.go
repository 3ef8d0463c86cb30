package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// CatalogStore implements pharma.Catalog on the product_urls table.
type CatalogStore struct {
	db DB
}

// NewCatalogStore constructs a CatalogStore over an existing pool.
func NewCatalogStore(db DB) (*CatalogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &CatalogStore{db: db}, nil
}

// RecordDiscovered inserts the (source, url) pair if absent. An
// existing row keeps its freshness bookkeeping; identity hints are
// seeded only where the stored row lacks them.
func (s *CatalogStore) RecordDiscovered(ctx context.Context, source pharma.Source, url pharma.DiscoveredURL) error {
	query := `
		INSERT INTO product_urls (pharmacy_source, product_url, site_code, barcode, first_seen_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NOW())
		ON CONFLICT (pharmacy_source, product_url) DO UPDATE
		SET site_code = COALESCE(product_urls.site_code, EXCLUDED.site_code),
		    barcode = COALESCE(product_urls.barcode, EXCLUDED.barcode);
	`
	if _, err := s.db.Exec(ctx, query, source, url.URL, url.SiteCode, url.Barcode); err != nil {
		return &pharma.PersistenceError{Op: "record discovered url", Err: err}
	}
	return nil
}

// ListFetchCandidates returns every entry for source whose product row
// is missing, stale relative to stalenessBefore, or whose last fetch
// attempt failed. The unique (source, url) constraint guarantees the
// result is duplicate free.
func (s *CatalogStore) ListFetchCandidates(ctx context.Context, source pharma.Source, stalenessBefore time.Time) ([]pharma.CatalogEntry, error) {
	query := `
		SELECT c.pharmacy_source,
		       c.product_url,
		       COALESCE(c.site_code, ''),
		       COALESCE(c.barcode, ''),
		       c.first_seen_at,
		       c.last_fetch_attempt_at,
		       c.last_fetch_success_at
		FROM product_urls c
		LEFT JOIN products p
		  ON p.pharmacy_source = c.pharmacy_source AND p.site_code = c.site_code
		WHERE c.pharmacy_source = $1
		  AND (p.id IS NULL
		       OR p.scraped_at < $2
		       OR (c.last_fetch_attempt_at IS NOT NULL
		           AND (c.last_fetch_success_at IS NULL
		                OR c.last_fetch_success_at < c.last_fetch_attempt_at)));
	`
	rows, err := s.db.Query(ctx, query, source, stalenessBefore)
	if err != nil {
		return nil, &pharma.PersistenceError{Op: "list fetch candidates", Err: err}
	}
	defer rows.Close()

	var entries []pharma.CatalogEntry
	for rows.Next() {
		var entry pharma.CatalogEntry
		if err := rows.Scan(
			&entry.Source,
			&entry.URL,
			&entry.SiteCode,
			&entry.Barcode,
			&entry.FirstSeen,
			&entry.LastAttempt,
			&entry.LastSuccess,
		); err != nil {
			return nil, &pharma.PersistenceError{Op: "scan catalog row", Err: err}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &pharma.PersistenceError{Op: "iterate catalog rows", Err: err}
	}
	return entries, nil
}

// MarkAttempt records a detail fetch attempt timestamp.
func (s *CatalogStore) MarkAttempt(ctx context.Context, source pharma.Source, url string, at time.Time) error {
	query := `
		UPDATE product_urls
		SET last_fetch_attempt_at = $1
		WHERE pharmacy_source = $2 AND product_url = $3;
	`
	tag, err := s.db.Exec(ctx, query, at, source, url)
	if err != nil {
		return &pharma.PersistenceError{Op: "mark fetch attempt", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark attempt %s: %w", url, pharma.ErrNotFound)
	}
	return nil
}

// MarkSuccess records a successful detail fetch timestamp.
func (s *CatalogStore) MarkSuccess(ctx context.Context, source pharma.Source, url string, at time.Time) error {
	query := `
		UPDATE product_urls
		SET last_fetch_success_at = $1
		WHERE pharmacy_source = $2 AND product_url = $3;
	`
	tag, err := s.db.Exec(ctx, query, at, source, url)
	if err != nil {
		return &pharma.PersistenceError{Op: "mark fetch success", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark success %s: %w", url, pharma.ErrNotFound)
	}
	return nil
}
