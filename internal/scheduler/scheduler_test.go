package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

type fakeCatalog struct {
	entries map[pharma.Source][]pharma.CatalogEntry
	err     error

	gotThreshold time.Time
}

func (f *fakeCatalog) RecordDiscovered(context.Context, pharma.Source, pharma.DiscoveredURL) error {
	return nil
}

func (f *fakeCatalog) ListFetchCandidates(_ context.Context, source pharma.Source, before time.Time) ([]pharma.CatalogEntry, error) {
	f.gotThreshold = before
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[source], nil
}

func (f *fakeCatalog) MarkAttempt(context.Context, pharma.Source, string, time.Time) error {
	return nil
}

func (f *fakeCatalog) MarkSuccess(context.Context, pharma.Source, string, time.Time) error {
	return nil
}

type fakeTracking struct {
	items map[pharma.Source][]pharma.WorkItem
	err   error
}

func (f *fakeTracking) ListTrackingItems(_ context.Context, source pharma.Source) ([]pharma.WorkItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[source], nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func entry(source pharma.Source, url string) pharma.CatalogEntry {
	return pharma.CatalogEntry{Source: source, URL: url}
}

func TestBuildWorkSetSingleSource(t *testing.T) {
	catalog := &fakeCatalog{entries: map[pharma.Source][]pharma.CatalogEntry{
		pharma.SourcePuntoFarma: {
			entry(pharma.SourcePuntoFarma, "https://puntofarma.com.py/producto/1/a"),
			entry(pharma.SourcePuntoFarma, "https://puntofarma.com.py/producto/2/b"),
		},
		pharma.SourceFarmaOliva: {
			entry(pharma.SourceFarmaOliva, "https://farmaoliva.com.py/p/9"),
		},
	}}
	s := New(catalog, nil, fixedClock{time.Now()}, zap.NewNop())

	items, err := s.BuildWorkSet(context.Background(), Config{Source: pharma.SourcePuntoFarma})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.Equal(t, pharma.SourcePuntoFarma, item.Source)
	}
}

func TestBuildWorkSetMaxItems(t *testing.T) {
	catalog := &fakeCatalog{entries: map[pharma.Source][]pharma.CatalogEntry{
		pharma.SourcePuntoFarma: {
			entry(pharma.SourcePuntoFarma, "https://puntofarma.com.py/producto/1/a"),
			entry(pharma.SourcePuntoFarma, "https://puntofarma.com.py/producto/2/b"),
			entry(pharma.SourcePuntoFarma, "https://puntofarma.com.py/producto/3/c"),
		},
	}}
	s := New(catalog, nil, fixedClock{time.Now()}, zap.NewNop())

	items, err := s.BuildWorkSet(context.Background(), Config{Source: pharma.SourcePuntoFarma, MaxItems: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestBuildWorkSetDeduplicatesTracking(t *testing.T) {
	url := "https://puntofarma.com.py/producto/1/a"
	catalog := &fakeCatalog{entries: map[pharma.Source][]pharma.CatalogEntry{
		pharma.SourcePuntoFarma: {entry(pharma.SourcePuntoFarma, url)},
	}}
	tracking := &fakeTracking{items: map[pharma.Source][]pharma.WorkItem{
		pharma.SourcePuntoFarma: {
			{Source: pharma.SourcePuntoFarma, URL: url},
			{Source: pharma.SourcePuntoFarma, URL: "https://puntofarma.com.py/producto/7/t"},
		},
	}}
	s := New(catalog, tracking, fixedClock{time.Now()}, zap.NewNop())

	items, err := s.BuildWorkSet(context.Background(), Config{
		Source:          pharma.SourcePuntoFarma,
		IncludeTracking: true,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestBuildWorkSetDefaultThresholdIsStartOfDay(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	catalog := &fakeCatalog{}
	s := New(catalog, nil, fixedClock{now}, zap.NewNop())

	_, err := s.BuildWorkSet(context.Background(), Config{Source: pharma.SourcePuntoFarma})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), catalog.gotThreshold)
}

func TestBuildWorkSetExplicitThreshold(t *testing.T) {
	threshold := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	catalog := &fakeCatalog{}
	s := New(catalog, nil, fixedClock{time.Now()}, zap.NewNop())

	_, err := s.BuildWorkSet(context.Background(), Config{
		Source:          pharma.SourcePuntoFarma,
		StalenessBefore: threshold,
	})
	require.NoError(t, err)
	require.Equal(t, threshold, catalog.gotThreshold)
}

func TestBuildWorkSetCatalogError(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("connection refused")}
	s := New(catalog, nil, fixedClock{time.Now()}, zap.NewNop())

	_, err := s.BuildWorkSet(context.Background(), Config{})
	require.Error(t, err)
}

func TestBuildTrackingSetDeduplicates(t *testing.T) {
	url := "https://puntofarma.com.py/producto/1/a"
	tracking := &fakeTracking{items: map[pharma.Source][]pharma.WorkItem{
		pharma.SourcePuntoFarma: {
			{Source: pharma.SourcePuntoFarma, URL: url},
			{Source: pharma.SourcePuntoFarma, URL: url},
			{Source: pharma.SourcePuntoFarma, URL: "https://puntofarma.com.py/producto/2/b"},
		},
	}}
	s := New(&fakeCatalog{}, tracking, fixedClock{time.Now()}, zap.NewNop())

	items, err := s.BuildTrackingSet(context.Background(), pharma.SourcePuntoFarma)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestBuildTrackingSetWithoutList(t *testing.T) {
	s := New(&fakeCatalog{}, nil, fixedClock{time.Now()}, zap.NewNop())

	items, err := s.BuildTrackingSet(context.Background(), pharma.SourcePuntoFarma)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestBuildWorkSetAllSources(t *testing.T) {
	catalog := &fakeCatalog{entries: map[pharma.Source][]pharma.CatalogEntry{
		pharma.SourcePuntoFarma: {entry(pharma.SourcePuntoFarma, "https://puntofarma.com.py/producto/1/a")},
		pharma.SourceFarmaOliva: {entry(pharma.SourceFarmaOliva, "https://farmaoliva.com.py/p/9")},
	}}
	s := New(catalog, nil, fixedClock{time.Now()}, zap.NewNop())

	items, err := s.BuildWorkSet(context.Background(), Config{})
	require.NoError(t, err)
	require.Len(t, items, 2)
}
