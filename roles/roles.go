// Package roles implements the organisational role functions of the dev
// team: goal intake, complexity assessment, the CTO, engineering managers,
// senior and QA engineers, the senior engineer aggregator, the final
// review, and the human assistance nodes.
//
// Every role is a Func: one tick over the pipeline state returning a
// team.Delta. Roles never call each other; the pipeline routes between
// them. A role whose precondition does not hold returns a delta that at
// most changes the phase, so it is safe to invoke repeatedly.
package roles

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/team"
)

// Func is a role function.
type Func func(ctx context.Context, s team.State) team.Delta

// Option configures the ambient dependencies of a role.
type Option func(*options)

type options struct {
	logger *zap.Logger
	costs  *model.CostTracker
	model  model.ChatModel
}

// WithLogger sets the role logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithModel attaches an LLM to roles that can use one: the CTO asks it for
// a strategic analysis and the review for a closing assessment. Neither
// changes the work breakdown.
func WithModel(m model.ChatModel) Option {
	return func(o *options) { o.model = m }
}

// WithCostTracker records the token usage of LLM-backed roles.
func WithCostTracker(ct *model.CostTracker) Option {
	return func(o *options) { o.costs = ct }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// chat sends a system and user prompt and returns the trimmed reply.
func (o options) chat(ctx context.Context, m model.ChatModel, agent, system, prompt string) (string, error) {
	out, err := m.Chat(ctx, []model.Message{model.System(system), model.User(prompt)})
	if err != nil {
		return "", err
	}
	if o.costs != nil {
		o.costs.RecordLLMCall(out.Model, out.Usage.InputTokens, out.Usage.OutputTokens, agent)
	}
	return strings.TrimSpace(out.Text), nil
}

// phaseAfterExecution is the phase once an engineer role has nothing left
// to hand to evaluation.
func phaseAfterExecution(queue []team.WorkItem) team.Phase {
	for _, w := range queue {
		if w.Status == team.StatusAssigned {
			return team.PhaseExecution
		}
	}
	return team.PhaseReview
}

// preview shortens s to n runes for audit messages.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
