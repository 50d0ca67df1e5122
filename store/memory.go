package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore keeps records in memory. Records are deep-copied through JSON on
// the way in and out so callers cannot alias stored state.
type MemStore[S any] struct {
	mu          sync.RWMutex
	steps       map[string]map[int][]byte // runID -> step -> record
	latest      map[string]int
	checkpoints map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:       make(map[string]map[int][]byte),
		latest:      make(map[string]int),
		checkpoints: make(map[string][]byte),
	}
}

// SaveStep implements Store.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, rec StepRecord[S]) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.steps[runID]
	if !ok {
		run = make(map[int][]byte)
		m.steps[runID] = run
	}
	run[rec.Step] = data
	if cur, ok := m.latest[runID]; !ok || rec.Step >= cur {
		m.latest[runID] = rec.Step
	}
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (StepRecord[S], error) {
	m.mu.RLock()
	step, ok := m.latest[runID]
	var data []byte
	if ok {
		data = m.steps[runID][step]
	}
	m.mu.RUnlock()

	var rec StepRecord[S]
	if !ok {
		return rec, ErrNotFound
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to unmarshal step: %w", err)
	}
	return rec, nil
}

// Steps returns every record of runID in step order.
func (m *MemStore[S]) Steps(runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run := m.steps[runID]
	out := make([]StepRecord[S], 0, len(run))
	for step := 0; len(out) < len(run); step++ {
		data, ok := run[step]
		if !ok {
			continue
		}
		var rec StepRecord[S]
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step %d: %w", step, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveCheckpoint implements Store.
func (m *MemStore[S]) SaveCheckpoint(_ context.Context, cp Checkpoint[S]) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	m.mu.Lock()
	m.checkpoints[cp.ID] = data
	m.mu.Unlock()
	return nil
}

// LoadCheckpoint implements Store.
func (m *MemStore[S]) LoadCheckpoint(_ context.Context, cpID string) (Checkpoint[S], error) {
	m.mu.RLock()
	data, ok := m.checkpoints[cpID]
	m.mu.RUnlock()

	var cp Checkpoint[S]
	if !ok {
		return cp, ErrNotFound
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}
