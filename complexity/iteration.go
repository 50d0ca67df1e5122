package complexity

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dshills/devteam/team"
)

// IterationResult is the audit record of one finished iteration.
type IterationResult = team.IterationResult

// IterationManager plans and tracks multi-pass execution when the ideal
// team exceeds the worker ceiling. It is safe for concurrent use.
//
// The manager holds no state of its own between pipeline ticks: callers
// Restore it from the run's team.IterationState, act, and write Snapshot
// back.
type IterationManager struct {
	mu      sync.Mutex
	current int
	total   int
	batches [][]string
	results []IterationResult
}

// NewIterationManager returns a manager with nothing planned.
func NewIterationManager() *IterationManager {
	return &IterationManager{}
}

// PlanIterations splits queue into batches of at most
// limits.MaxTotalWorkers items. When totalRequiredWorkers fits the limit the
// whole queue is one batch.
//
// Items are grouped by descending priority; within a priority the queue
// order is kept. Planning starts over at iteration 0 and drops any
// previously recorded results.
func (m *IterationManager) PlanIterations(queue []team.WorkItem, limits team.ResourceLimits, totalRequiredWorkers int) [][]team.WorkItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = 0
	m.results = nil

	if totalRequiredWorkers <= limits.MaxTotalWorkers {
		batch := team.CloneItems(queue)
		m.total = 1
		m.batches = [][]string{team.IDs(batch)}
		return [][]team.WorkItem{batch}
	}

	perBatch := max(limits.MaxTotalWorkers, 1)

	ordered := team.CloneItems(queue)
	slices.SortStableFunc(ordered, func(a, b team.WorkItem) int {
		return b.Priority - a.Priority
	})

	var batches [][]team.WorkItem
	for start := 0; start < len(ordered); start += perBatch {
		end := min(start+perBatch, len(ordered))
		batches = append(batches, ordered[start:end:end])
	}

	m.total = len(batches)
	m.batches = make([][]string, len(batches))
	for i, b := range batches {
		m.batches[i] = team.IDs(b)
	}
	return batches
}

// ShouldContinue reports whether planned iterations remain.
func (m *IterationManager) ShouldContinue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current < m.total
}

// Advance moves to the next iteration and returns its number.
func (m *IterationManager) Advance() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current++
	return m.current
}

// Current returns the current iteration number.
func (m *IterationManager) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Total returns the number of planned iterations.
func (m *IterationManager) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// RecordResult appends r, stamped with the current iteration. Recorded
// results are never replaced.
func (m *IterationManager) RecordResult(r IterationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Iteration = m.current
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.CompletedWork = slices.Clone(r.CompletedWork)
	m.results = append(m.results, r)
}

// Results returns a copy of the recorded results.
func (m *IterationManager) Results() []IterationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneResults(m.results)
}

// Summary renders the per-iteration completion counts.
func (m *IterationManager) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 {
		return "No iterations completed yet"
	}
	lines := []string{fmt.Sprintf("Completed %d iterations:", len(m.results))}
	for _, r := range m.results {
		lines = append(lines, fmt.Sprintf("  Iteration %d: %d items completed", r.Iteration, len(r.CompletedWork)))
	}
	return strings.Join(lines, "\n")
}

// Snapshot exports the plan and position for persistence in pipeline state.
func (m *IterationManager) Snapshot() team.IterationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	batches := make([][]string, len(m.batches))
	for i, b := range m.batches {
		batches[i] = slices.Clone(b)
	}
	return team.IterationState{
		IsIterative:      m.total > 1,
		CurrentIteration: m.current,
		TotalIterations:  m.total,
		Batches:          batches,
		Results:          cloneResults(m.results),
	}
}

// Restore loads a plan and its recorded results previously produced by
// Snapshot.
func (m *IterationManager) Restore(s team.IterationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s.CurrentIteration
	m.total = s.TotalIterations
	m.batches = make([][]string, len(s.Batches))
	for i, b := range s.Batches {
		m.batches[i] = slices.Clone(b)
	}
	m.results = cloneResults(s.Results)
}

func cloneResults(rs []IterationResult) []IterationResult {
	if len(rs) == 0 {
		return nil
	}
	out := make([]IterationResult, len(rs))
	for i, r := range rs {
		r.CompletedWork = slices.Clone(r.CompletedWork)
		out[i] = r
	}
	return out
}
