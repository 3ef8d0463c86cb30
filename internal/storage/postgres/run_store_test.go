package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

func TestStartRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clk := &fixedClock{now: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)}
	store, err := NewRunStore(mock, clk)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO scraping_runs").
		WithArgs(pgxmock.AnyArg(), pharma.SourcePuntoFarma, pharma.PhaseDiscovery, pharma.RunStatusRunning, clk.now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := store.StartRun(context.Background(), pharma.SourcePuntoFarma, pharma.PhaseDiscovery)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.Equal(t, pharma.RunStatusRunning, run.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunUpdatesCounters(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clk := &fixedClock{now: time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)}
	store, err := NewRunStore(mock, clk)
	require.NoError(t, err)

	counters := pharma.RunCounters{Attempted: 10, Succeeded: 9, Failed: 1}
	mock.ExpectExec("UPDATE scraping_runs").
		WithArgs(pharma.RunStatusCompleted, clk.now, 10, 9, 1, "", "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.CompleteRun(context.Background(), "run-1", pharma.RunStatusCompleted, counters, ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunUnknownID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, &fixedClock{now: time.Now().UTC()})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE scraping_runs").
		WithArgs(pharma.RunStatusFailed, pgxmock.AnyArg(), 0, 0, 0, "boom", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.CompleteRun(context.Background(), "missing", pharma.RunStatusFailed, pharma.RunCounters{}, "boom")
	require.ErrorIs(t, err, pharma.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileAbandonedCountsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	clk := &fixedClock{now: time.Now().UTC()}
	store, err := NewRunStore(mock, clk)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE scraping_runs").
		WithArgs(pharma.RunStatusAborted, clk.now, pharma.RunStatusRunning).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := store.ReconcileAbandoned(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, &fixedClock{now: time.Now().UTC()})
	require.NoError(t, err)

	started := time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC)
	finished := started.Add(time.Hour)
	rows := pgxmock.NewRows([]string{
		"id", "pharmacy_source", "phase", "status", "started_at", "finished_at",
		"items_attempted", "items_succeeded", "items_failed", "error_message",
	}).
		AddRow("run-2", pharma.SourcePuntoFarma, pharma.PhaseDetail, pharma.RunStatusCompleted, started, &finished, 5, 5, 0, "").
		AddRow("run-1", pharma.SourceFarmaOliva, pharma.PhaseDiscovery, pharma.RunStatusFailed, started.Add(-time.Hour), &started, 0, 0, 0, "network exhausted")

	mock.ExpectQuery("SELECT (.+) FROM scraping_runs").
		WithArgs(10).
		WillReturnRows(rows)

	runs, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].ID)
	require.Equal(t, "network exhausted", runs[1].ErrorText)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTrackingItems(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTrackingStore(mock)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"pharmacy_source", "product_url", "site_code"}).
		AddRow(pharma.SourcePuntoFarma, "https://example.com/p/1", "1").
		AddRow(pharma.SourcePuntoFarma, "https://example.com/p/2", "")

	mock.ExpectQuery("SELECT (.+) FROM barcode_tracking_urls").
		WithArgs(pharma.SourcePuntoFarma).
		WillReturnRows(rows)

	items, err := store.ListTrackingItems(context.Background(), pharma.SourcePuntoFarma)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "1", items[0].SiteCode)
	require.NoError(t, mock.ExpectationsWereMet())
}
