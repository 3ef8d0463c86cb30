package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// RunStore implements pharma.RunLedger on the scraping_runs table.
type RunStore struct {
	db    DB
	clock pharma.Clock
}

// NewRunStore constructs a RunStore over an existing pool.
func NewRunStore(db DB, clock pharma.Clock) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &RunStore{db: db, clock: clock}, nil
}

// StartRun creates a new running ledger row.
func (s *RunStore) StartRun(ctx context.Context, source pharma.Source, phase pharma.RunPhase) (pharma.Run, error) {
	run := pharma.Run{
		ID:      uuid.NewString(),
		Source:  source,
		Phase:   phase,
		Status:  pharma.RunStatusRunning,
		Started: s.clock.Now(),
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO scraping_runs (id, pharmacy_source, phase, status, started_at)
		VALUES ($1, $2, $3, $4, $5);
	`, run.ID, run.Source, run.Phase, run.Status, run.Started); err != nil {
		return pharma.Run{}, &pharma.PersistenceError{Op: "start run", Err: err}
	}
	return run, nil
}

// CompleteRun finalizes a ledger row with status and counters.
func (s *RunStore) CompleteRun(ctx context.Context, runID string, status pharma.RunStatus, counters pharma.RunCounters, errText string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE scraping_runs
		SET status = $1,
		    finished_at = $2,
		    items_attempted = $3,
		    items_succeeded = $4,
		    items_failed = $5,
		    error_message = NULLIF($6, '')
		WHERE id = $7;
	`, status, s.clock.Now(), counters.Attempted, counters.Succeeded, counters.Failed, errText, runID)
	if err != nil {
		return &pharma.PersistenceError{Op: "complete run", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", runID, pharma.ErrNotFound)
	}
	return nil
}

// ReconcileAbandoned marks dangling running rows aborted so a crashed
// process does not leave monitoring confused.
func (s *RunStore) ReconcileAbandoned(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE scraping_runs
		SET status = $1, finished_at = $2
		WHERE status = $3;
	`, pharma.RunStatusAborted, s.clock.Now(), pharma.RunStatusRunning)
	if err != nil {
		return 0, &pharma.PersistenceError{Op: "reconcile abandoned runs", Err: err}
	}
	return int(tag.RowsAffected()), nil
}

// ListRecent returns up to limit runs, most recently started first.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]pharma.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, pharmacy_source, phase, status, started_at, finished_at,
		       items_attempted, items_succeeded, items_failed,
		       COALESCE(error_message, '')
		FROM scraping_runs
		ORDER BY started_at DESC
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, &pharma.PersistenceError{Op: "list recent runs", Err: err}
	}
	defer rows.Close()

	var runs []pharma.Run
	for rows.Next() {
		var run pharma.Run
		if err := rows.Scan(
			&run.ID, &run.Source, &run.Phase, &run.Status,
			&run.Started, &run.Finished,
			&run.Counters.Attempted, &run.Counters.Succeeded, &run.Counters.Failed,
			&run.ErrorText,
		); err != nil {
			return nil, &pharma.PersistenceError{Op: "scan run row", Err: err}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, &pharma.PersistenceError{Op: "iterate run rows", Err: err}
	}
	return runs, nil
}
