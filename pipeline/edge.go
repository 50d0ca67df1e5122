package pipeline

import "github.com/dshills/devteam/team"

// Predicate gates an edge.
type Predicate func(s team.State) bool

// Router picks the next node from the merged state. It may return End or
// Suspend, or "" when it has no opinion.
type Router func(s team.State) string

// Edge is a conditional transition. A nil When always matches.
type Edge struct {
	From string
	To   string
	When Predicate
}

// route resolves the next node after from: an explicit Next wins, then the
// node's routers in registration order, then its edges.
func (e *Engine) route(from string, explicit Next, s team.State) string {
	if to := explicit.target(); to != "" {
		return to
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.routers[from] {
		if to := r(s); to != "" {
			return to
		}
	}
	for _, edge := range e.edges {
		if edge.From != from {
			continue
		}
		if edge.When == nil || edge.When(s) {
			return edge.To
		}
	}
	return ""
}
