package evaluation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/devteam/team"
)

// Evaluator is the pipeline node of one ladder stage.
type Evaluator struct {
	stage    team.Stage
	name     string
	reviewer Reviewer
	logger   *zap.Logger
	hold     bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithReviewer replaces the canned reviewer.
func WithReviewer(r Reviewer) Option {
	return func(e *Evaluator) {
		if r != nil {
			e.reviewer = r
		}
	}
}

// WithLogger sets the evaluator logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHoldForAggregation keeps senior-engineer items that pass the ladder
// in the evaluation queue at stage completed when their manager runs two
// or more senior engineers, so the aggregator can join them.
func WithHoldForAggregation(hold bool) Option {
	return func(e *Evaluator) { e.hold = hold }
}

// New returns the evaluator of stage.
func New(stage team.Stage, opts ...Option) *Evaluator {
	e := &Evaluator{
		stage:    stage,
		name:     EvaluatorName(stage),
		reviewer: CannedReviewer{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Development moves freshly delivered work into unit testing.
func Development(opts ...Option) *Evaluator { return New(team.StageDevelopment, opts...) }

// UnitTest returns the unit_test evaluator.
func UnitTest(opts ...Option) *Evaluator { return New(team.StageUnitTest, opts...) }

// SelfReview returns the self_review evaluator.
func SelfReview(opts ...Option) *Evaluator { return New(team.StageSelfReview, opts...) }

// PeerReview returns the peer_review evaluator.
func PeerReview(opts ...Option) *Evaluator { return New(team.StagePeerReview, opts...) }

// IntegrationTest returns the integration_test evaluator.
func IntegrationTest(opts ...Option) *Evaluator { return New(team.StageIntegrationTest, opts...) }

// ManagerReview returns the manager_review evaluator.
func ManagerReview(opts ...Option) *Evaluator { return New(team.StageManagerReview, opts...) }

// CTOReview returns the cto_review evaluator.
func CTOReview(opts ...Option) *Evaluator { return New(team.StageCTOReview, opts...) }

// Stage returns the stage the evaluator acts on.
func (e *Evaluator) Stage() team.Stage { return e.stage }

// Name returns the evaluator name recorded in feedback.
func (e *Evaluator) Name() string { return e.name }

// Evaluate runs one tick over every evaluation queue item at the
// evaluator's stage. Items at other stages pass through untouched. When
// no item is at the stage the returned Delta is empty.
func (e *Evaluator) Evaluate(ctx context.Context, s team.State) team.Delta {
	queue := team.CloneItems(s.EvaluationQueue)
	kept := make([]team.WorkItem, 0, len(queue))
	var completed, failed []team.WorkItem
	var msgs []string
	touched := false

	for _, item := range queue {
		loop := item.EvaluationLoop
		if loop == nil || loop.Stage != e.stage {
			kept = append(kept, item)
			continue
		}
		touched = true
		from := loop.Stage
		loop.Ticks++

		var out Outcome
		if budget := loop.TickBudget(); loop.Ticks > budget {
			loop.AddFeedback(e.stage, fmt.Sprintf("Tick budget of %d exceeded; escalating to human review.", budget), e.name)
			out = Transition(*loop, Input{Escalate: true})
			e.logger.Warn("work item exceeded its tick budget",
				zap.String("work_item", item.ID),
				zap.Int("ticks", loop.Ticks),
				zap.Int("budget", budget),
			)
		} else {
			v := e.review(ctx, item)
			loop.AddFeedback(e.stage, v.Feedback, e.name)
			out = Transition(*loop, Input{Escalate: v.Escalate})
		}
		out.Apply(loop)
		item.Status = out.Status

		if out.Queue == QueueCompleted && e.hold && holdsForAggregation(s, item) {
			item.Status = team.StatusEvaluation
			kept = append(kept, item)
			msgs = append(msgs, fmt.Sprintf("%s: %s passed evaluation, held for aggregation", e.name, item.ID))
			continue
		}

		switch out.Queue {
		case QueueCompleted:
			completed = append(completed, item)
		case QueueFailed:
			failed = append(failed, item)
		default:
			kept = append(kept, item)
		}
		if loop.Stage != from {
			msgs = append(msgs, fmt.Sprintf("%s: %s moved %s -> %s", e.name, item.ID, from, loop.Stage))
		}
	}

	if !touched {
		return team.Delta{}
	}
	delta := team.Delta{
		EvaluationQueue: kept,
		Phase:           team.PhaseEvaluation,
		Messages:        msgs,
	}
	if len(completed) > 0 {
		delta.CompletedWork = team.Append(s.CompletedWork, completed...)
	}
	if len(failed) > 0 {
		delta.FailedWork = team.Append(s.FailedWork, failed...)
	}
	return delta
}

func (e *Evaluator) review(ctx context.Context, item team.WorkItem) Verdict {
	if e.stage == team.StageDevelopment {
		return Verdict{Feedback: CannedFeedback(e.stage)}
	}
	v, err := e.reviewer.Review(ctx, e.stage, item)
	if err != nil {
		e.logger.Warn("reviewer failed, using canned feedback",
			zap.String("stage", string(e.stage)),
			zap.String("work_item", item.ID),
			zap.Error(err),
		)
		return Verdict{Feedback: CannedFeedback(e.stage)}
	}
	if v.Feedback == "" {
		v.Feedback = CannedFeedback(e.stage)
	}
	return v
}
