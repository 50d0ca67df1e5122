package roles

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/dshills/devteam/team"
)

// maxClaimsPerManager is how many pending items one manager takes on.
const maxClaimsPerManager = 3

// EngineeringManager processes the head of the active managers: it forms
// the manager's team of one QA engineer and maxSeniorEngineers senior
// engineers, then claims up to three pending items. The first claimed item
// goes to the QA engineer and the rest round-robin across the senior
// engineers. When the assessment recommends fewer engineers per manager
// the team is sized down to match.
//
// With no manager or no claimable work the role only moves the phase to
// execution.
func EngineeringManager(maxSeniorEngineers int, opts ...Option) Func {
	o := buildOptions(opts)
	return func(_ context.Context, s team.State) team.Delta {
		if len(s.ActiveManagers) == 0 {
			return team.Delta{Phase: team.PhaseExecution}
		}
		available := claimable(s)
		if len(available) == 0 {
			return team.Delta{Phase: team.PhaseExecution}
		}

		m := s.ActiveManagers[0]
		reg := s.Registry.Clone()
		staff := reg.FormTeam(m, seniorCount(s, maxSeniorEngineers))

		queue := team.CloneItems(s.WorkQueue)
		claimed := available[:min(maxClaimsPerManager, len(available))]
		msgs := make([]string, 0, len(claimed))
		for i, id := range claimed {
			a := staff.QA
			if i > 0 {
				a = staff.Seniors[(i-1)%len(staff.Seniors)]
			}
			idx := team.IndexByID(queue, id)
			queue[idx].Status = team.StatusAssigned
			queue[idx].AssignedTo = &a
			msgs = append(msgs, fmt.Sprintf("%s assigned '%s' to %s", m, queue[idx].Title, a))
		}

		engineers := maps.Clone(s.ActiveEngineers)
		if engineers == nil {
			engineers = make(map[team.ManagerID]team.Team)
		}
		engineers[m] = staff
		remaining := slices.Clone(s.ActiveManagers[1:])
		if remaining == nil {
			remaining = []team.ManagerID{}
		}

		phase := team.PhaseExecution
		if len(remaining) > 0 {
			phase = team.PhaseDelegation
		}
		o.logger.Info("manager delegated work",
			zap.Stringer("manager", m),
			zap.Int("claimed", len(claimed)),
			zap.Int("senior_engineers", len(staff.Seniors)),
		)
		return team.Delta{
			WorkQueue:       queue,
			ActiveManagers:  remaining,
			ActiveEngineers: engineers,
			Registry:        reg,
			Phase:           phase,
			Messages:        msgs,
		}
	}
}

// CanDelegate reports whether a manager is waiting and there is work it
// may claim.
func CanDelegate(s team.State) bool {
	return len(s.ActiveManagers) > 0 && len(claimable(s)) > 0
}

// claimable returns the ids of pending items, restricted to the current
// batch while iterating.
func claimable(s team.State) []string {
	batch := s.Iteration.CurrentBatch()
	var ids []string
	for _, w := range s.WorkQueue {
		if w.Status != team.StatusPending {
			continue
		}
		if s.Iteration.IsIterative && !slices.Contains(batch, w.ID) {
			continue
		}
		ids = append(ids, w.ID)
	}
	return ids
}

func seniorCount(s team.State, maxSeniorEngineers int) int {
	n := maxSeniorEngineers
	if n <= 0 {
		n = s.Limits.MaxEngineersPerManager
	}
	if a := s.Assessment; a != nil && a.RecommendedEngineersPerManager > 0 {
		if n <= 0 {
			n = a.RecommendedEngineersPerManager
		} else {
			n = min(n, a.RecommendedEngineersPerManager)
		}
	}
	return max(n, 1)
}
