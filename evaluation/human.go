package evaluation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/dshills/devteam/team"
)

var (
	// ErrNotAwaiting is returned when a decision names an item that is not
	// suspended at human escalation.
	ErrNotAwaiting = errors.New("work item is not awaiting a human decision")

	// ErrInvalidDecision is returned for a decision other than approve,
	// redirect or reject.
	ErrInvalidDecision = errors.New("invalid human decision")
)

const humanEvaluatorName = "human_escalation_evaluator"

// HumanEscalation resolves items at human_escalation with recorded
// decisions. Items without a decision are listed in State.AwaitingHuman
// and left in place.
type HumanEscalation struct {
	logger *zap.Logger
}

// NewHumanEscalation returns the human escalation node.
func NewHumanEscalation(logger *zap.Logger) *HumanEscalation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HumanEscalation{logger: logger}
}

// Evaluate consumes pending decisions for escalated items.
func (h *HumanEscalation) Evaluate(_ context.Context, s team.State) team.Delta {
	queue := team.CloneItems(s.EvaluationQueue)
	kept := make([]team.WorkItem, 0, len(queue))
	pending := maps.Clone(s.PendingDecisions)
	if pending == nil {
		pending = map[string]team.HumanDecision{}
	}
	awaiting := []string{}
	var completed, failed []team.WorkItem
	var msgs []string
	touched := false

	for _, item := range queue {
		if item.Stage() != team.StageHumanEscalation {
			kept = append(kept, item)
			continue
		}
		touched = true

		d, ok := pending[item.ID]
		if !ok {
			awaiting = append(awaiting, item.ID)
			kept = append(kept, item)
			continue
		}
		delete(pending, item.ID)
		if !d.Decision.Valid() {
			h.logger.Warn("ignoring invalid human decision",
				zap.String("work_item", item.ID),
				zap.String("decision", string(d.Decision)),
			)
			awaiting = append(awaiting, item.ID)
			kept = append(kept, item)
			continue
		}

		loop := item.EvaluationLoop
		loop.AddFeedback(team.StageHumanEscalation, fmt.Sprintf("Human decision: %s - %s", d.Decision, d.Feedback), humanEvaluatorName)
		out := Transition(*loop, Input{Decision: d.Decision})
		out.Apply(loop)
		item.Status = out.Status
		msgs = append(msgs, fmt.Sprintf("%s: %s %s by human", humanEvaluatorName, item.ID, decisionVerb(d.Decision)))

		switch out.Queue {
		case QueueCompleted:
			completed = append(completed, item)
		case QueueFailed:
			failed = append(failed, item)
		default:
			kept = append(kept, item)
		}
	}

	if !touched && len(s.AwaitingHuman) == 0 {
		return team.Delta{}
	}
	delta := team.Delta{
		EvaluationQueue:  kept,
		PendingDecisions: pending,
		AwaitingHuman:    awaiting,
		Phase:            team.PhaseEvaluation,
		Messages:         msgs,
	}
	if len(completed) > 0 {
		delta.CompletedWork = team.Append(s.CompletedWork, completed...)
	}
	if len(failed) > 0 {
		delta.FailedWork = team.Append(s.FailedWork, failed...)
	}
	return delta
}

func decisionVerb(d team.Decision) string {
	switch d {
	case team.DecisionApprove:
		return "approved"
	case team.DecisionRedirect:
		return "redirected"
	default:
		return "rejected"
	}
}

// AwaitingDecision returns the ids of items at human_escalation that have
// no recorded decision, in queue order.
func AwaitingDecision(s team.State) []string {
	var ids []string
	for _, w := range s.EvaluationQueue {
		if w.Stage() != team.StageHumanEscalation {
			continue
		}
		if _, ok := s.PendingDecisions[w.ID]; !ok {
			ids = append(ids, w.ID)
		}
	}
	return ids
}

// RecordDecisions validates decisions against the escalated items of s and
// returns the delta that stores them for the human escalation node.
func RecordDecisions(s team.State, decisions map[string]team.HumanDecision) (team.Delta, error) {
	escalated := make(map[string]bool)
	for _, w := range s.EvaluationQueue {
		if w.Stage() == team.StageHumanEscalation {
			escalated[w.ID] = true
		}
	}

	pending := maps.Clone(s.PendingDecisions)
	if pending == nil {
		pending = map[string]team.HumanDecision{}
	}
	ids := slices.Sorted(maps.Keys(decisions))
	msgs := make([]string, 0, len(ids))
	for _, id := range ids {
		d := decisions[id]
		if !escalated[id] {
			return team.Delta{}, fmt.Errorf("%s: %w", id, ErrNotAwaiting)
		}
		if !d.Decision.Valid() {
			return team.Delta{}, fmt.Errorf("%s: %q: %w", id, d.Decision, ErrInvalidDecision)
		}
		pending[id] = d
		msgs = append(msgs, fmt.Sprintf("human decision recorded for %s: %s", id, d.Decision))
	}
	return team.Delta{PendingDecisions: pending, Messages: msgs}, nil
}
