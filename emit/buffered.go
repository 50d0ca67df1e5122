package emit

import "sync"

// BufferedEmitter keeps every event in memory, grouped by run. It backs
// tests and the CLI's end-of-run report.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter narrows History results. Zero fields match everything.
type HistoryFilter struct {
	NodeID  string
	Msg     string
	MinStep int
	MaxStep int
}

// NewBufferedEmitter returns an empty buffer.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit implements Emitter.
func (b *BufferedEmitter) Emit(e Event) {
	b.mu.Lock()
	b.events[e.RunID] = append(b.events[e.RunID], e)
	b.mu.Unlock()
}

// History returns a copy of runID's events in emission order.
func (b *BufferedEmitter) History(runID string) []Event {
	return b.Filter(runID, HistoryFilter{})
}

// Filter returns runID's events matching f.
func (b *BufferedEmitter) Filter(runID string, f HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []Event{}
	for _, e := range b.events[runID] {
		if f.NodeID != "" && e.NodeID != f.NodeID {
			continue
		}
		if f.Msg != "" && e.Msg != f.Msg {
			continue
		}
		if f.MinStep > 0 && e.Step < f.MinStep {
			continue
		}
		if f.MaxStep > 0 && e.Step > f.MaxStep {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clear drops runID's events, or every run's when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
