package roles

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/devteam/team"
)

const reviewSystemPrompt = `You are conducting a final project review and organizational analysis.
Analyze completion status, assess team structure, and summarize key
achievements and areas for improvement.`

// Review summarises completed work and the composition of every team ever
// formed, then marks the pipeline completed.
func Review(opts ...Option) Func {
	o := buildOptions(opts)
	return func(ctx context.Context, s team.State) team.Delta {
		summary := ReviewSummary(s)
		msgs := []string{fmt.Sprintf("Review: %d completed, %d failed, %d team(s)", len(s.CompletedWork), len(s.FailedWork), len(s.ActiveEngineers))}

		if o.model != nil {
			analysis, err := o.chat(ctx, o.model, "review", reviewSystemPrompt, "Please review this project:\n\n"+summary)
			switch {
			case err != nil:
				o.logger.Warn("review analysis failed", zap.Error(err))
			case analysis != "":
				summary += "\n\nAnalysis:\n" + analysis
				msgs = append(msgs, "Final review: "+preview(analysis, 200))
			}
		}

		o.logger.Info("review completed",
			zap.Int("completed", len(s.CompletedWork)),
			zap.Int("failed", len(s.FailedWork)),
			zap.Int("teams", len(s.ActiveEngineers)),
		)
		return team.Delta{
			ReviewSummary: summary,
			Phase:         team.PhaseCompleted,
			Messages:      msgs,
		}
	}
}

// ReviewSummary renders the completion counts and team composition of s.
func ReviewSummary(s team.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Work items completed: %d\n", len(s.CompletedWork))
	if len(s.FailedWork) > 0 {
		fmt.Fprintf(&b, "Work items failed: %d\n", len(s.FailedWork))
	}
	if n := len(s.WorkQueue) + len(s.EvaluationQueue); n > 0 {
		fmt.Fprintf(&b, "Work items unfinished: %d\n", n)
	}
	fmt.Fprintf(&b, "Managers: %d\n", len(s.ActiveEngineers))

	qa, seniors := 0, 0
	for _, m := range slices.Sorted(maps.Keys(s.ActiveEngineers)) {
		t := s.ActiveEngineers[m]
		qa++
		seniors += len(t.Seniors)
		fmt.Fprintf(&b, "  %s: QA engineer %s, %d senior engineer(s)\n", m, t.QA, len(t.Seniors))
	}
	fmt.Fprintf(&b, "QA engineers: %d\nSenior engineers: %d\nTotal engineers: %d", qa, seniors, qa+seniors)
	return b.String()
}
