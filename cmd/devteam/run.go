package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/dshills/devteam/assist"
	"github.com/dshills/devteam/pipeline"
	"github.com/dshills/devteam/team"
)

// session drives one run through its suspensions.
type session struct {
	app         *app
	engine      *pipeline.Engine
	runID       string
	interactive bool
	out         io.Writer
}

// start runs the pipeline from the top and then keeps resuming it while
// the operator answers.
func (s *session) start(ctx context.Context, initial team.State) error {
	state, status, err := s.engine.Run(ctx, s.runID, initial)
	if err != nil {
		return s.report(state, status, err)
	}
	return s.settle(ctx, state, status)
}

// resume continues a suspended run with the given answers, prompting for
// the rest when interactive.
func (s *session) resume(ctx context.Context, decisions map[string]team.HumanDecision, resolutions map[string]assist.Resolution) error {
	if len(decisions) == 0 && len(resolutions) == 0 {
		rec, err := s.app.store.LoadLatest(ctx, s.runID)
		if err != nil {
			return fmt.Errorf("load run %s: %w", s.runID, err)
		}
		if rec.Next != pipeline.Suspend {
			state, status, err := s.engine.Resume(ctx, s.runID, nil, nil)
			if err != nil {
				return s.report(state, status, err)
			}
			return s.settle(ctx, state, status)
		}
		return s.settle(ctx, rec.State, pipeline.StatusAwaitingHuman)
	}
	state, status, err := s.engine.Resume(ctx, s.runID, decisions, resolutions)
	if err != nil {
		return s.report(state, status, err)
	}
	return s.settle(ctx, state, status)
}

func (s *session) settle(ctx context.Context, state team.State, status pipeline.Status) error {
	for status == pipeline.StatusAwaitingHuman && s.interactive {
		decisions, err := collectDecisions(s.app.prompt, state)
		if err != nil {
			return s.stopPrompting(state, err)
		}
		resolutions, err := collectResolutions(s.app.prompt, state)
		if err != nil {
			return s.stopPrompting(state, err)
		}
		if len(decisions) == 0 && len(resolutions) == 0 {
			break
		}
		state, status, err = s.engine.Resume(ctx, s.runID, decisions, resolutions)
		if err != nil {
			return s.report(state, status, err)
		}
	}
	return s.report(state, status, nil)
}

func (s *session) stopPrompting(state team.State, err error) error {
	if errors.Is(err, errCancelled) {
		return s.report(state, pipeline.StatusAwaitingHuman, nil)
	}
	return err
}

func (s *session) report(state team.State, status pipeline.Status, err error) error {
	fmt.Fprintln(s.out, renderSummary(s.runID, state, status))
	if total := s.app.costs.TotalCost(); total > 0 {
		in, out := s.app.costs.Tokens()
		fmt.Fprintf(s.out, "LLM usage: %d input / %d output tokens, $%.4f\n", in, out, total)
	}
	if status == pipeline.StatusAwaitingHuman && err == nil {
		fmt.Fprintf(s.out, "\nRun %s is waiting for human input. Continue with:\n  devteam resume --run-id %s\n", s.runID, s.runID)
	}
	if err != nil {
		s.app.logger.Error("run stopped", zap.String("run_id", s.runID), zap.Error(err))
	}
	return err
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(12)
	statusStyle = map[pipeline.Status]lipgloss.Style{
		pipeline.StatusCompleted:     lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77")),
		pipeline.StatusAwaitingHuman: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D")),
		pipeline.StatusFailed:        lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
	boxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// renderSummary is the end-of-invocation report.
func renderSummary(runID string, s team.State, status pipeline.Status) string {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}
	rows := []string{
		headerStyle.Render("devteam run " + runID),
		row("status", statusStyle[status].Render(string(status))),
		row("phase", string(s.Phase)),
		row("completed", itemList(s.CompletedWork)),
		row("failed", itemList(s.FailedWork)),
		row("queued", itemList(append(team.CloneItems(s.WorkQueue), s.EvaluationQueue...))),
	}
	if s.Iteration.IsIterative {
		rows = append(rows, row("iteration", fmt.Sprintf("%d/%d", s.Iteration.CurrentIteration+1, s.Iteration.TotalIterations)))
	}
	if ids := awaitingIDs(s); ids != "" {
		rows = append(rows, row("awaiting", ids))
	}
	if n := len(assist.Pending(s.AssistanceRequests)); n > 0 {
		rows = append(rows, row("assistance", fmt.Sprintf("%d pending request(s)", n)))
	}
	out := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	if s.ReviewSummary != "" {
		out += "\n" + s.ReviewSummary
	}
	return out
}

func itemList(items []team.WorkItem) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(team.IDs(items), ", ")
}

func awaitingIDs(s team.State) string {
	var ids []string
	for _, w := range s.EvaluationQueue {
		if w.Stage() == team.StageHumanEscalation {
			ids = append(ids, w.ID)
		}
	}
	return strings.Join(ids, ", ")
}

// statusOf derives a run status from the next node of its latest step.
func statusOf(next string) pipeline.Status {
	switch next {
	case pipeline.End:
		return pipeline.StatusCompleted
	case pipeline.Suspend:
		return pipeline.StatusAwaitingHuman
	}
	return "interrupted"
}
