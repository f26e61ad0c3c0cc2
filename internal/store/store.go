// Package store persists run history: one row per invocation plus one
// row per unit/pipeline outcome, so `status` can answer what happened
// without re-scanning the output tree.
package store

import (
	"sort"
	"sync"
	"time"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// Run is one program invocation.
type Run struct {
	ID         string // uuid
	StartedAt  string
	FinishedAt string // empty while running
	ConfigJSON string // resolved configuration, for provenance
	Units      int
	Completed  int
	Failed     int
}

// UnitResult is one unit's outcome for one pipeline within a run.
type UnitResult struct {
	ID         int64
	RunID      string
	Unit       string
	Pipeline   string
	Status     string // completed | failed
	FailedStep string
	Code       int
}

// Store is the run-history backend.
type Store interface {
	CreateRun(r *Run) error
	FinishRun(id string, completed, failed int) error
	GetRun(id string) (*Run, error)
	ListRuns() ([]*Run, error)
	AddUnitResult(res *UnitResult) error
	ListUnitResults(runID string) ([]*UnitResult, error)
	Close() error
}

// MemStore is an in-memory Store for tests and ephemeral runs.
type MemStore struct {
	mu      sync.Mutex
	runs    map[string]*Run
	results []*UnitResult
	nextID  int64
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{runs: make(map[string]*Run)}
}

func (m *MemStore) CreateRun(r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.StartedAt == "" {
		r.StartedAt = nowUTC()
	}
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *MemStore) FinishRun(id string, completed, failed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.FinishedAt = nowUTC()
		r.Completed = completed
		r.Failed = failed
	}
	return nil
}

func (m *MemStore) GetRun(id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MemStore) ListRuns() ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out, nil
}

func (m *MemStore) AddUnitResult(res *UnitResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *res
	cp.ID = m.nextID
	m.results = append(m.results, &cp)
	return nil
}

func (m *MemStore) ListUnitResults(runID string) ([]*UnitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*UnitResult
	for _, r := range m.results {
		if r.RunID == runID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }
