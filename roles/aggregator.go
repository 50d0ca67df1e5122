package roles

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/devteam/evaluation"
	"github.com/dshills/devteam/team"
)

// AggregatorName is the creator recorded on integrated packages.
const AggregatorName = "senior_engineer_aggregator"

// SeniorEngineerAggregator joins senior-engineer work that passed the
// ladder into one integrated package for the QA engineer of the first
// contributor's manager. It fires when at least two such items wait in the
// evaluation queue; the contributors leave both queues.
func SeniorEngineerAggregator(opts ...Option) Func {
	o := buildOptions(opts)
	return func(_ context.Context, s team.State) team.Delta {
		held := evaluation.Held(s)
		if len(held) < 2 {
			return team.Delta{Phase: team.PhaseExecution}
		}

		first := held[0]
		qa := team.QAEngineer(first.AssignedTo.Manager)
		lines := make([]string, 0, len(held)+1)
		lines = append(lines, "Integrated Development Package:")
		priority := first.Priority
		for _, w := range held {
			lines = append(lines, fmt.Sprintf("- %s: %s", w.Title, w.Result))
			priority = max(priority, w.Priority)
		}

		pkg := team.NewWorkItem(
			"integrated_output_"+first.ID,
			"Integrated Development Package",
			fmt.Sprintf("Combined deliverable from %d senior engineers working in parallel", len(held)),
			priority,
			AggregatorName,
		)
		pkg.Status = team.StatusAssigned
		pkg.AssignedTo = &qa
		pkg.Result = strings.Join(lines, "\n")
		pkg.IterationBatch = first.IterationBatch

		ids := team.IDs(held)
		o.logger.Info("aggregated senior engineer output",
			zap.String("package", pkg.ID),
			zap.Strings("contributors", ids),
			zap.Stringer("qa_engineer", qa),
		)
		return team.Delta{
			WorkQueue:       team.Append(team.RemoveByID(s.WorkQueue, ids...), pkg),
			EvaluationQueue: team.RemoveByID(s.EvaluationQueue, ids...),
			Phase:           team.PhaseExecution,
			Messages:        []string{fmt.Sprintf("%s combined %d outputs into %s for %s", AggregatorName, len(held), pkg.ID, qa)},
		}
	}
}
