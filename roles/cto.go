package roles

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/devteam/complexity"
	"github.com/dshills/devteam/evaluation"
	"github.com/dshills/devteam/team"
)

type workTemplate struct {
	id       string
	title    string
	format   string
	priority int
}

var ctoTemplate = []workTemplate{
	{"work_1", "Core Implementation", "Implement core functionality for: %s", 3},
	{"work_2", "Integration Layer", "Build integration components for: %s", 2},
	{"work_3", "Testing Framework", "Develop comprehensive testing for: %s", 4},
	{"work_4", "Documentation", "Create documentation for: %s", 1},
}

// TemplateWorkItems returns the CTO's four-part breakdown of goal.
func TemplateWorkItems(goal string) []team.WorkItem {
	items := make([]team.WorkItem, 0, len(ctoTemplate))
	for _, t := range ctoTemplate {
		items = append(items, team.NewWorkItem(t.id, t.title, fmt.Sprintf(t.format, goal), t.priority, "cto"))
	}
	return items
}

// CTO breaks the project goal into the template work items and registers
// the managers that will delegate them.
//
// The manager count is maxManagers, lowered to the assessment's
// recommendation when one exists. A non-positive maxManagers defers to the
// resource limits. When the assessment requires iteration the items are
// planned into batches; on re-entry after a batch has settled the CTO
// advances to the next batch with a fresh set of managers.
//
// The iteration plan and its results live in s.Iteration only, so one CTO
// func serves any number of runs.
func CTO(maxManagers int, opts ...Option) Func {
	o := buildOptions(opts)
	return func(ctx context.Context, s team.State) team.Delta {
		switch {
		case needsPlanning(s):
			return o.plan(ctx, s, managerCount(s, maxManagers))
		case CanAdvanceIteration(s):
			return o.advance(s, managerCount(s, maxManagers))
		}
		return team.Delta{}
	}
}

func needsPlanning(s team.State) bool {
	return s.ProjectGoals != "" &&
		s.Iteration.TotalIterations == 0 &&
		len(s.WorkQueue)+len(s.EvaluationQueue)+len(s.CompletedWork)+len(s.FailedWork) == 0
}

// CanAdvanceIteration reports whether the current batch has settled and
// another is planned. Items held for aggregation or waiting on a human do
// not block the advance.
func CanAdvanceIteration(s team.State) bool {
	if !s.Iteration.HasNext() {
		return false
	}
	if CanDelegate(s) {
		return false
	}
	for _, w := range s.WorkQueue {
		if w.Status == team.StatusAssigned || w.Status == team.StatusInProgress {
			return false
		}
	}
	for _, w := range s.EvaluationQueue {
		if evaluation.IsHeld(w) || w.Stage() == team.StageHumanEscalation {
			continue
		}
		return false
	}
	return true
}

func managerCount(s team.State, maxManagers int) int {
	n := maxManagers
	if n <= 0 {
		n = s.Limits.MaxManagers
	}
	if a := s.Assessment; a != nil && a.RecommendedManagers > 0 {
		if n <= 0 {
			n = a.RecommendedManagers
		} else {
			n = min(n, a.RecommendedManagers)
		}
	}
	return max(n, 1)
}

func (o options) plan(ctx context.Context, s team.State, managers int) team.Delta {
	items := TemplateWorkItems(s.ProjectGoals)
	reg := s.Registry.Clone()
	ids := reg.AddManagers(managers)

	msgs := []string{fmt.Sprintf("CTO created %d work items and %d managers: %s", len(items), len(ids), joinManagers(ids))}
	var iter team.IterationState
	if a := s.Assessment; a != nil && a.RequiresIteration && s.Limits.AllowIterations {
		planner := complexity.NewIterationManager()
		batches := planner.PlanIterations(items, s.Limits, a.RawTotal())
		batchOf := make(map[string]int, len(items))
		for i, b := range batches {
			for _, w := range b {
				batchOf[w.ID] = i
			}
		}
		for i := range items {
			items[i].IterationBatch = batchOf[items[i].ID]
		}
		iter = planner.Snapshot()
		if iter.IsIterative {
			msgs = append(msgs, fmt.Sprintf("Work planned in %d iterations", iter.TotalIterations))
		}
		// Over the limit every batch still runs.
		if s.Limits.MaxIterations > 0 && iter.TotalIterations > s.Limits.MaxIterations {
			o.logger.Warn("iteration plan exceeds the iteration limit",
				zap.Int("planned", iter.TotalIterations),
				zap.Int("limit", s.Limits.MaxIterations),
			)
			msgs = append(msgs, fmt.Sprintf("Iteration plan needs %d iterations, over the limit of %d; all batches will run",
				iter.TotalIterations, s.Limits.MaxIterations))
		}
	}

	if o.model != nil {
		analysis, err := o.chat(ctx, o.model, "cto", ctoSystemPrompt(managers), ctoPrompt(s.ProjectGoals, managers))
		switch {
		case err != nil:
			o.logger.Warn("cto strategic analysis failed", zap.Error(err))
		case analysis != "":
			msgs = append(msgs, "CTO strategic analysis: "+preview(analysis, 200))
		}
	}

	o.logger.Info("cto delegated work", zap.Int("items", len(items)), zap.Int("managers", len(ids)))
	return team.Delta{
		WorkQueue:      items,
		ActiveManagers: ids,
		Registry:       reg,
		Iteration:      &iter,
		Phase:          team.PhaseDelegation,
		Messages:       msgs,
	}
}

func (o options) advance(s team.State, managers int) team.Delta {
	planner := complexity.NewIterationManager()
	planner.Restore(s.Iteration)
	current := s.Iteration.CurrentBatch()

	var done []string
	for _, w := range s.CompletedWork {
		if slices.Contains(current, w.ID) {
			done = append(done, w.ID)
		}
	}
	planner.RecordResult(complexity.IterationResult{
		CompletedWork: done,
		Summary:       fmt.Sprintf("%d of %d batch items completed", len(done), len(current)),
	})

	next := planner.Advance()
	iter := planner.Snapshot()

	// Unclaimed items of the finished batch roll over into the next one.
	queue := team.CloneItems(s.WorkQueue)
	var carried []string
	for i, w := range queue {
		if w.Status == team.StatusPending && slices.Contains(current, w.ID) {
			carried = append(carried, w.ID)
			queue[i].IterationBatch = next
		}
	}
	if len(carried) > 0 {
		iter.Batches[next] = append(carried, iter.Batches[next]...)
		planner.Restore(iter)
	}

	reg := s.Registry.Clone()
	ids := reg.AddManagers(managers)
	o.logger.Info("advancing iteration",
		zap.Int("iteration", next+1),
		zap.Int("total", iter.TotalIterations),
		zap.Int("carried_over", len(carried)),
	)
	return team.Delta{
		WorkQueue:      queue,
		ActiveManagers: ids,
		Registry:       reg,
		Iteration:      &iter,
		Phase:          team.PhaseDelegation,
		Messages: []string{
			fmt.Sprintf("Advancing to iteration %d/%d with managers %s", next+1, iter.TotalIterations, joinManagers(ids)),
			planner.Summary(),
		},
	}
}

func joinManagers(ids []team.ManagerID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	return strings.Join(names, ", ")
}

func ctoSystemPrompt(managers int) string {
	return fmt.Sprintf(`You are a CTO responsible for strategic planning and work breakdown.

Your responsibilities:
- Analyze project requirements and create strategic plans
- Break down work into manageable components
- Make technical architecture decisions

The work will be delegated to %d engineering managers across four areas:
core implementation, integration layer, testing framework and documentation.`, managers)
}

func ctoPrompt(goal string, managers int) string {
	return fmt.Sprintf("Please analyze these project goals and outline a strategic plan:\n\n%s\n\nDescribe how %d engineering managers should split the work.", goal, managers)
}
