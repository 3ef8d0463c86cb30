package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// RunLedger is an in-memory pharma.RunLedger implementation.
type RunLedger struct {
	mu    sync.RWMutex
	runs  map[string]pharma.Run
	clock pharma.Clock
}

// NewRunLedger constructs a RunLedger.
func NewRunLedger(clock pharma.Clock) *RunLedger {
	return &RunLedger{
		runs:  make(map[string]pharma.Run),
		clock: clock,
	}
}

// StartRun creates a new running ledger row.
func (l *RunLedger) StartRun(_ context.Context, source pharma.Source, phase pharma.RunPhase) (pharma.Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	run := pharma.Run{
		ID:      uuid.NewString(),
		Source:  source,
		Phase:   phase,
		Status:  pharma.RunStatusRunning,
		Started: l.clock.Now(),
	}
	l.runs[run.ID] = run
	return run, nil
}

// CompleteRun finalizes a ledger row.
func (l *RunLedger) CompleteRun(_ context.Context, runID string, status pharma.RunStatus, counters pharma.RunCounters, errText string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	run, ok := l.runs[runID]
	if !ok {
		return pharma.ErrNotFound
	}
	now := l.clock.Now()
	run.Status = status
	run.Counters = counters
	run.ErrorText = errText
	run.Finished = &now
	l.runs[runID] = run
	return nil
}

// ReconcileAbandoned marks dangling running rows aborted.
func (l *RunLedger) ReconcileAbandoned(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	now := l.clock.Now()
	for id, run := range l.runs {
		if run.Status != pharma.RunStatusRunning {
			continue
		}
		run.Status = pharma.RunStatusAborted
		run.Finished = &now
		l.runs[id] = run
		count++
	}
	return count, nil
}

// ListRecent returns up to limit runs, most recently started first.
func (l *RunLedger) ListRecent(_ context.Context, limit int) ([]pharma.Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]pharma.Run, 0, len(l.runs))
	for _, run := range l.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Started.After(out[j].Started)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the stored run (test helper).
func (l *RunLedger) Get(runID string) (pharma.Run, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	run, ok := l.runs[runID]
	return run, ok
}
