package team

import (
	"fmt"
	"strings"
)

// InvariantError lists every violation found by CheckInvariants.
type InvariantError struct {
	Violations []string
}

func (e *InvariantError) Error() string {
	return "state invariants violated: " + strings.Join(e.Violations, "; ")
}

// queue names used in violation messages
const (
	queueWork       = "work_queue"
	queueEvaluation = "evaluation_queue"
	queueCompleted  = "completed_work"
	queueFailed     = "failed_work"
)

// CheckInvariants verifies queue partition and loop bounds. It returns nil
// or an *InvariantError.
//
// Partition: every id appears in exactly one queue and the item's status
// agrees with that queue. Loop bounds: 0 <= loop_count <= max_loops and
// 0 <= escalation_count <= max_escalations.
func CheckInvariants(s State) error {
	var violations []string
	seen := make(map[string]string)

	check := func(queue string, items []WorkItem, allowed ...Status) {
		for _, w := range items {
			if prev, dup := seen[w.ID]; dup {
				violations = append(violations, fmt.Sprintf("item %s present in %s and %s", w.ID, prev, queue))
			}
			seen[w.ID] = queue
			if !statusIn(w.Status, allowed) {
				violations = append(violations, fmt.Sprintf("item %s in %s has status %s", w.ID, queue, w.Status))
			}
			if l := w.EvaluationLoop; l != nil {
				if l.LoopCount < 0 || l.LoopCount > l.MaxLoops {
					violations = append(violations, fmt.Sprintf("item %s loop_count %d outside [0,%d]", w.ID, l.LoopCount, l.MaxLoops))
				}
				if l.EscalationCount < 0 || l.EscalationCount > l.MaxEscalations {
					violations = append(violations, fmt.Sprintf("item %s escalation_count %d outside [0,%d]", w.ID, l.EscalationCount, l.MaxEscalations))
				}
				if !l.Stage.Valid() {
					violations = append(violations, fmt.Sprintf("item %s has unknown stage %q", w.ID, l.Stage))
				}
			}
		}
	}

	check(queueWork, s.WorkQueue, StatusPending, StatusAssigned, StatusInProgress)
	check(queueEvaluation, s.EvaluationQueue, StatusEvaluation, StatusInProgress)
	check(queueCompleted, s.CompletedWork, StatusCompleted)
	check(queueFailed, s.FailedWork, StatusFailed)

	if len(violations) == 0 {
		return nil
	}
	return &InvariantError{Violations: violations}
}

func statusIn(s Status, allowed []Status) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
