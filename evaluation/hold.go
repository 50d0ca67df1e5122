package evaluation

import (
	"context"
	"fmt"

	"github.com/dshills/devteam/team"
)

func holdsForAggregation(s team.State, item team.WorkItem) bool {
	if item.AssignedKind() != team.KindSeniorEngineer {
		return false
	}
	t, ok := s.ActiveEngineers[item.AssignedTo.Manager]
	return ok && len(t.Seniors) >= 2
}

// IsHeld reports whether item passed the ladder and waits in the
// evaluation queue for aggregation.
func IsHeld(item team.WorkItem) bool {
	return item.Stage() == team.StageCompleted && item.AssignedKind() == team.KindSeniorEngineer
}

// Held returns the evaluation queue items waiting for aggregation.
func Held(s team.State) []team.WorkItem {
	var out []team.WorkItem
	for _, w := range s.EvaluationQueue {
		if IsHeld(w) {
			out = append(out, w)
		}
	}
	return out
}

// Releasable reports whether held items can no longer be joined: fewer
// than two are held and no other senior-engineer work is still under way.
func Releasable(s team.State) bool {
	held := Held(s)
	if len(held) == 0 || len(held) >= 2 {
		return false
	}
	for _, w := range s.EvaluationQueue {
		if w.AssignedKind() == team.KindSeniorEngineer && !w.Stage().Terminal() {
			return false
		}
	}
	for _, w := range s.WorkQueue {
		if w.AssignedKind() == team.KindSeniorEngineer {
			return false
		}
	}
	return true
}

// Release moves held items without an aggregation partner to completed
// work. It is a no-op unless Releasable holds.
func Release(_ context.Context, s team.State) team.Delta {
	if !Releasable(s) {
		return team.Delta{}
	}
	var released []team.WorkItem
	var msgs []string
	for _, w := range Held(s) {
		w = w.Clone()
		w.Status = team.StatusCompleted
		released = append(released, w)
		msgs = append(msgs, fmt.Sprintf("%s released to completed work without aggregation", w.ID))
	}
	return team.Delta{
		EvaluationQueue: team.RemoveByID(s.EvaluationQueue, team.IDs(released)...),
		CompletedWork:   team.Append(s.CompletedWork, released...),
		Messages:        msgs,
	}
}
