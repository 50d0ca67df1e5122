package evaluation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/team"
)

// Verdict is a reviewer's answer for one item at one stage.
type Verdict struct {
	Feedback string
	// Escalate asks for a human decision immediately.
	Escalate bool
}

// Reviewer produces the feedback recorded at a stage.
type Reviewer interface {
	Review(ctx context.Context, stage team.Stage, item team.WorkItem) (Verdict, error)
}

// ReviewerFunc adapts a function to Reviewer.
type ReviewerFunc func(ctx context.Context, stage team.Stage, item team.WorkItem) (Verdict, error)

// Review implements Reviewer.
func (f ReviewerFunc) Review(ctx context.Context, stage team.Stage, item team.WorkItem) (Verdict, error) {
	return f(ctx, stage, item)
}

var cannedFeedback = map[team.Stage]string{
	team.StageDevelopment:     "Development complete. Handing over to unit testing.",
	team.StageUnitTest:        "Unit tests passing with 85% coverage. Consider adding edge case tests for error handling.",
	team.StageSelfReview:      "Code structure looks good. Refactored error handling and improved documentation.",
	team.StagePeerReview:      "Good implementation. Suggested improvements to variable naming and added performance considerations.",
	team.StageIntegrationTest: "Integration tests pass. API endpoints working correctly with external services.",
	team.StageManagerReview:   "Meets business requirements. Approved for deployment to staging environment.",
	team.StageCTOReview:       "Strategic alignment confirmed. Approved for production deployment.",
}

// CannedFeedback returns the fixed feedback text of a stage.
func CannedFeedback(stage team.Stage) string {
	return cannedFeedback[stage]
}

// CannedReviewer answers with fixed text and never escalates.
type CannedReviewer struct{}

// Review implements Reviewer.
func (CannedReviewer) Review(_ context.Context, stage team.Stage, _ team.WorkItem) (Verdict, error) {
	return Verdict{Feedback: CannedFeedback(stage)}, nil
}

// EvaluatorName is the name recorded in feedback for a stage.
func EvaluatorName(stage team.Stage) string {
	return string(stage) + "_evaluator"
}

// LLMReviewer asks a chat model for stage feedback. Model failures fall
// back to canned feedback.
type LLMReviewer struct {
	model  model.ChatModel
	logger *zap.Logger
	costs  *model.CostTracker
}

// LLMReviewerOption configures an LLMReviewer.
type LLMReviewerOption func(*LLMReviewer)

// WithReviewerLogger sets the logger used to report fallbacks.
func WithReviewerLogger(l *zap.Logger) LLMReviewerOption {
	return func(r *LLMReviewer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReviewerCosts records token usage.
func WithReviewerCosts(ct *model.CostTracker) LLMReviewerOption {
	return func(r *LLMReviewer) { r.costs = ct }
}

// NewLLMReviewer returns a reviewer backed by m.
func NewLLMReviewer(m model.ChatModel, opts ...LLMReviewerOption) *LLMReviewer {
	r := &LLMReviewer{model: m, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review implements Reviewer. It never returns an error.
func (r *LLMReviewer) Review(ctx context.Context, stage team.Stage, item team.WorkItem) (Verdict, error) {
	out, err := r.model.Chat(ctx, []model.Message{
		model.System(reviewerSystemPrompt(stage)),
		model.User(reviewerPrompt(stage, item)),
	})
	if err == nil && strings.TrimSpace(out.Text) == "" {
		err = model.ErrEmptyResponse
	}
	if err != nil {
		r.logger.Warn("reviewer model failed, using canned feedback",
			zap.String("stage", string(stage)),
			zap.String("work_item", item.ID),
			zap.Error(err),
		)
		return Verdict{Feedback: CannedFeedback(stage)}, nil
	}
	if r.costs != nil {
		r.costs.RecordLLMCall(out.Model, out.Usage.InputTokens, out.Usage.OutputTokens, EvaluatorName(stage))
	}
	return ParseVerdict(out.Text), nil
}

// ParseVerdict reads a reviewer response. A line consisting of ESCALATE,
// optionally followed by a colon and a reason, requests human review; the
// remaining text is the feedback.
func ParseVerdict(text string) Verdict {
	var v Verdict
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		if upper == "ESCALATE" || strings.HasPrefix(upper, "ESCALATE:") {
			v.Escalate = true
			if reason := strings.TrimSpace(trimmed[len("ESCALATE"):]); reason != "" {
				kept = append(kept, strings.TrimSpace(strings.TrimPrefix(reason, ":")))
			}
			continue
		}
		kept = append(kept, line)
	}
	v.Feedback = strings.TrimSpace(strings.Join(kept, "\n"))
	return v
}

func reviewerSystemPrompt(stage team.Stage) string {
	return fmt.Sprintf(`You are the %s reviewer in a software team's evaluation pipeline.
Give short, concrete feedback on the work item. If the work cannot proceed
without a human decision, put a line "ESCALATE: <reason>" in your answer.`,
		strings.ReplaceAll(string(stage), "_", " "))
}

func reviewerPrompt(stage team.Stage, item team.WorkItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Work item %s: %s\n", item.ID, item.Title)
	fmt.Fprintf(&b, "Description: %s\n", item.Description)
	fmt.Fprintf(&b, "Result: %s\n", item.Result)
	if l := item.EvaluationLoop; l != nil {
		fmt.Fprintf(&b, "Stage: %s (pass %d of %d, escalation %d of %d)\n",
			stage, l.LoopCount, l.MaxLoops, l.EscalationCount, l.MaxEscalations)
		recent := l.Feedback
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		for _, f := range recent {
			fmt.Fprintf(&b, "Earlier %s feedback: %s\n", f.Stage, f.Feedback)
		}
	}
	return b.String()
}
