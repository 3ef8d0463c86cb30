package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
	"github.com/pharmintel/pricewatch/internal/ratelimit"
	"github.com/pharmintel/pricewatch/internal/scheduler"
	"github.com/pharmintel/pricewatch/internal/storage/memory"
	"github.com/pharmintel/pricewatch/internal/worker"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeAdapter struct {
	source      pharma.Source
	discovered  []pharma.DiscoveredURL
	discoverErr error
	products    map[string]*pharma.Product
}

func (a *fakeAdapter) Source() pharma.Source { return a.source }

func (a *fakeAdapter) Discover(_ context.Context, emit func(pharma.DiscoveredURL) error) error {
	for _, url := range a.discovered {
		if err := emit(url); err != nil {
			return err
		}
	}
	return a.discoverErr
}

func (a *fakeAdapter) FetchDetail(_ context.Context, url string) (*pharma.Product, []byte, error) {
	p, ok := a.products[url]
	if !ok {
		return nil, nil, pharma.ErrNotFound
	}
	return p, []byte("<html></html>"), nil
}

type fixture struct {
	adapter  *fakeAdapter
	catalog  *memory.Catalog
	products *memory.ProductStore
	ledger   *memory.RunLedger
	tracking *memory.TrackingList
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := fixedClock{time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	adapter := &fakeAdapter{
		source:   pharma.SourcePuntoFarma,
		products: make(map[string]*pharma.Product),
	}
	adapters := map[pharma.Source]pharma.Adapter{pharma.SourcePuntoFarma: adapter}
	products := memory.NewProductStore(clock)
	catalog := memory.NewCatalog(clock, products)
	ledger := memory.NewRunLedger(clock)
	tracking := memory.NewTrackingList()
	sched := scheduler.New(catalog, tracking, clock, zap.NewNop())
	pool := worker.New(
		adapters,
		catalog,
		products,
		nil,
		nil,
		ratelimit.New(ratelimit.Config{}),
		clock,
		worker.Config{Concurrency: 2, ItemTimeout: time.Second},
		zap.NewNop(),
	)
	orch := New(adapters, catalog, ledger, sched, pool, zap.NewNop())
	return &fixture{
		adapter:  adapter,
		catalog:  catalog,
		products: products,
		ledger:   ledger,
		tracking: tracking,
		orch:     orch,
	}
}

func url(n int) string {
	return fmt.Sprintf("https://puntofarma.com.py/producto/%d/x", n)
}

func findRun(t *testing.T, runs []pharma.Run, phase pharma.RunPhase) pharma.Run {
	t.Helper()
	for _, run := range runs {
		if run.Phase == phase {
			return run
		}
	}
	t.Fatalf("no %s run recorded", phase)
	return pharma.Run{}
}

func (f *fixture) seedDiscovery(n int) {
	for i := 1; i <= n; i++ {
		f.adapter.discovered = append(f.adapter.discovered, pharma.DiscoveredURL{
			URL:      url(i),
			SiteCode: fmt.Sprintf("%d", i),
		})
		f.adapter.products[url(i)] = &pharma.Product{
			Source:       pharma.SourcePuntoFarma,
			SiteCode:     fmt.Sprintf("%d", i),
			Name:         fmt.Sprintf("Producto %d", i),
			CurrentPrice: float64(1000 * i),
			SourceURL:    url(i),
			ScrapedAt:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		}
	}
}

func TestRunDiscoveryRecordsURLsAndLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedDiscovery(3)

	require.NoError(t, f.orch.RunDiscovery(ctx, pharma.SourcePuntoFarma))
	require.Equal(t, 3, f.catalog.Len())

	runs, err := f.ledger.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, pharma.PhaseDiscovery, runs[0].Phase)
	require.Equal(t, pharma.RunStatusCompleted, runs[0].Status)
	require.Equal(t, 3, runs[0].Counters.Succeeded)
}

func TestRunDiscoveryFailureMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedDiscovery(2)
	f.adapter.discoverErr = errors.New("listing page structure changed")

	require.Error(t, f.orch.RunDiscovery(ctx, pharma.SourcePuntoFarma))
	// URLs emitted before the failure are kept.
	require.Equal(t, 2, f.catalog.Len())

	runs, err := f.ledger.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, pharma.RunStatusFailed, runs[0].Status)
	require.Contains(t, runs[0].ErrorText, "structure changed")
}

func TestRunDetailProcessesCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedDiscovery(4)
	require.NoError(t, f.orch.RunDiscovery(ctx, pharma.SourcePuntoFarma))

	require.NoError(t, f.orch.RunDetail(ctx, DetailConfig{Source: pharma.SourcePuntoFarma}))
	require.Equal(t, 4, f.products.Len())

	runs, err := f.ledger.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	detail := findRun(t, runs, pharma.PhaseDetail)
	require.Equal(t, pharma.RunStatusCompleted, detail.Status)
	require.Equal(t, pharma.RunCounters{Attempted: 4, Succeeded: 4}, detail.Counters)
}

func TestRunDetailCountsVanishedPageAsFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedDiscovery(3)
	require.NoError(t, f.orch.RunDiscovery(ctx, pharma.SourcePuntoFarma))
	// The page vanishes between discovery and detail.
	delete(f.adapter.products, url(2))

	require.NoError(t, f.orch.RunDetail(ctx, DetailConfig{Source: pharma.SourcePuntoFarma}))
	require.Equal(t, 2, f.products.Len())

	runs, err := f.ledger.ListRecent(ctx, 10)
	require.NoError(t, err)
	detail := findRun(t, runs, pharma.PhaseDetail)
	require.Equal(t, pharma.RunStatusCompleted, detail.Status)
	require.Equal(t, pharma.RunCounters{Attempted: 3, Succeeded: 2, Failed: 1}, detail.Counters)
}

func TestRunDetailMaxItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedDiscovery(5)
	require.NoError(t, f.orch.RunDiscovery(ctx, pharma.SourcePuntoFarma))

	require.NoError(t, f.orch.RunDetail(ctx, DetailConfig{Source: pharma.SourcePuntoFarma, MaxItems: 2}))
	require.Equal(t, 2, f.products.Len())
}

func TestRunTracking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedDiscovery(1)
	require.NoError(t, f.orch.RunDiscovery(ctx, pharma.SourcePuntoFarma))
	f.tracking.Add(pharma.WorkItem{
		Source:   pharma.SourcePuntoFarma,
		URL:      url(1),
		SiteCode: "1",
	})

	require.NoError(t, f.orch.RunTracking(ctx, pharma.SourcePuntoFarma))
	require.Equal(t, 1, f.products.Len())

	runs, err := f.ledger.ListRecent(ctx, 10)
	require.NoError(t, err)
	tracking := findRun(t, runs, pharma.PhaseTracking)
	require.Equal(t, pharma.RunStatusCompleted, tracking.Status)
}

func TestRunTrackingEmptyListSkipsLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.orch.RunTracking(ctx, pharma.SourcePuntoFarma))
	runs, err := f.ledger.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, runs)
}
