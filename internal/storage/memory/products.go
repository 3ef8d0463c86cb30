package memory

import (
	"context"
	"sync"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// ProductStore is an in-memory pharma.ProductStore implementation.
// Upserts serialize per key so the read-old-price-then-write step is
// never racily interleaved, matching the Postgres implementation.
type ProductStore struct {
	mu       sync.Mutex
	keyLocks map[pharma.ProductKey]*sync.Mutex
	products map[pharma.ProductKey]pharma.Product
	history  map[pharma.ProductKey][]pharma.PriceChange
	clock    pharma.Clock
}

// NewProductStore constructs a ProductStore.
func NewProductStore(clock pharma.Clock) *ProductStore {
	return &ProductStore{
		keyLocks: make(map[pharma.ProductKey]*sync.Mutex),
		products: make(map[pharma.ProductKey]pharma.Product),
		history:  make(map[pharma.ProductKey][]pharma.PriceChange),
		clock:    clock,
	}
}

func (s *ProductStore) lockKey(key pharma.ProductKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	return l
}

// Upsert replaces the stored row for the product's key and derives a
// price history entry when current_price changed. The first insert
// never produces history.
func (s *ProductStore) Upsert(_ context.Context, p *pharma.Product) (pharma.PriceChange, bool, error) {
	key := p.Key()
	keyLock := s.lockKey(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	s.mu.Lock()
	prev, existed := s.products[key]
	s.mu.Unlock()

	record := *p
	if record.ScrapedAt.IsZero() {
		record.ScrapedAt = s.clock.Now()
	}

	var change pharma.PriceChange
	changed := existed && prev.CurrentPrice != record.CurrentPrice
	if changed {
		change = pharma.PriceChange{
			Source:    key.Source,
			SiteCode:  key.SiteCode,
			OldPrice:  prev.CurrentPrice,
			NewPrice:  record.CurrentPrice,
			ChangedAt: s.clock.Now(),
		}
	}

	s.mu.Lock()
	s.products[key] = record
	if changed {
		s.history[key] = append(s.history[key], change)
	}
	s.mu.Unlock()

	return change, changed, nil
}

// Get returns the stored product for the key, or pharma.ErrNotFound.
func (s *ProductStore) Get(_ context.Context, key pharma.ProductKey) (*pharma.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[key]
	if !ok {
		return nil, pharma.ErrNotFound
	}
	out := p
	return &out, nil
}

// PriceHistory returns recorded price changes for the key, oldest first.
func (s *ProductStore) PriceHistory(_ context.Context, key pharma.ProductKey) ([]pharma.PriceChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := s.history[key]
	out := make([]pharma.PriceChange, len(changes))
	copy(out, changes)
	return out, nil
}

// Len reports the number of stored products (test helper).
func (s *ProductStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}
