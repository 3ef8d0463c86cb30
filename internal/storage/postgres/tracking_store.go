package postgres

import (
	"context"
	"fmt"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// TrackingStore implements pharma.TrackingList on the
// barcode_tracking_urls table: a small, manually curated URL set for
// daily price tracking of known barcodes.
type TrackingStore struct {
	db DB
}

// NewTrackingStore constructs a TrackingStore over an existing pool.
func NewTrackingStore(db DB) (*TrackingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &TrackingStore{db: db}, nil
}

// ListTrackingItems returns the tracked URLs for a source.
func (s *TrackingStore) ListTrackingItems(ctx context.Context, source pharma.Source) ([]pharma.WorkItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT pharmacy_source, product_url, COALESCE(site_code, '')
		FROM barcode_tracking_urls
		WHERE pharmacy_source = $1;
	`, source)
	if err != nil {
		return nil, &pharma.PersistenceError{Op: "list tracking urls", Err: err}
	}
	defer rows.Close()

	var items []pharma.WorkItem
	for rows.Next() {
		var item pharma.WorkItem
		if err := rows.Scan(&item.Source, &item.URL, &item.SiteCode); err != nil {
			return nil, &pharma.PersistenceError{Op: "scan tracking row", Err: err}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &pharma.PersistenceError{Op: "iterate tracking rows", Err: err}
	}
	return items, nil
}
