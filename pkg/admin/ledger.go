// Package admin records every stage run in a ledger so operators can see
// what ran, when, against which table, and how many rows it moved.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Define static errors
var (
	ErrRunNotFound = errors.New("run not found")
	ErrEmptyRunID  = errors.New("run id is empty")
)

// Status is the state of a stage run
type Status string

// Run states
const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Run is one execution of a stage against one target table
type Run struct {
	ID                string    `json:"id"`
	PipelineID        string    `json:"pipeline_id,omitempty"`
	Stage             string    `json:"stage"`
	Table             string    `json:"table"`
	Location          string    `json:"location"`
	Mode              string    `json:"mode"`
	RowsRead          int64     `json:"rows_read"`
	RowsWritten       int64     `json:"rows_written"`
	RowsRejected      int64     `json:"rows_rejected"`
	DuplicatesRemoved int64     `json:"duplicates_removed"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at,omitzero"`
	Status            Status    `json:"status"`
	Error             string    `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// Finish stamps the run with its outcome
func (r *Run) Finish(at time.Time, err error) {
	r.FinishedAt = at
	r.Status = StatusSuccess

	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
	}
}

// Ledger stores stage runs. Record inserts or replaces a run by ID; List
// returns the most recently started runs first.
type Ledger interface {
	Record(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
}

func sortRuns(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}

		return runs[i].ID > runs[j].ID
	})
}

// Memory is a process-local ledger
type Memory struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewMemory creates an empty in-memory ledger
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]Run)}
}

// Record implements Ledger
func (m *Memory) Record(_ context.Context, run Run) error {
	if run.ID == "" {
		return ErrEmptyRunID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = run

	return nil
}

// Get implements Ledger
func (m *Memory) Get(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return &run, nil
}

// List implements Ledger. A limit <= 0 returns every run.
func (m *Memory) List(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	runs := make([]Run, 0, len(m.runs))

	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.RUnlock()

	sortRuns(runs)

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}
