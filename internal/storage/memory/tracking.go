package memory

import (
	"context"
	"sync"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// TrackingList is an in-memory pharma.TrackingList implementation.
type TrackingList struct {
	mu    sync.RWMutex
	items map[pharma.Source][]pharma.WorkItem
}

// NewTrackingList constructs a TrackingList.
func NewTrackingList() *TrackingList {
	return &TrackingList{
		items: make(map[pharma.Source][]pharma.WorkItem),
	}
}

// Add registers an item for targeted tracking.
func (t *TrackingList) Add(item pharma.WorkItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[item.Source] = append(t.items[item.Source], item)
}

// ListTrackingItems returns the tracked items for a source.
func (t *TrackingList) ListTrackingItems(_ context.Context, source pharma.Source) ([]pharma.WorkItem, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	items := t.items[source]
	out := make([]pharma.WorkItem, len(items))
	copy(out, items)
	return out, nil
}
