package roles

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/team"
)

// WorkExecutor carries out a work item for the assigned engineer and
// returns the result text. An error fails the item.
type WorkExecutor interface {
	Execute(ctx context.Context, item team.WorkItem, engineer team.Assignment) (string, error)
}

// ExecutorFunc adapts a function to WorkExecutor.
type ExecutorFunc func(ctx context.Context, item team.WorkItem, engineer team.Assignment) (string, error)

// Execute implements WorkExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, item team.WorkItem, engineer team.Assignment) (string, error) {
	return f(ctx, item, engineer)
}

// CannedExecutor reports work as done without doing any.
type CannedExecutor struct{}

// Execute implements WorkExecutor.
func (CannedExecutor) Execute(_ context.Context, item team.WorkItem, engineer team.Assignment) (string, error) {
	if engineer.Kind == team.KindQAEngineer {
		return fmt.Sprintf("QA testing completed for '%s' by %s", item.Title, engineer), nil
	}
	return fmt.Sprintf("Development completed for '%s' by %s", item.Title, engineer), nil
}

// LLMExecutor asks a model to carry out the work.
type LLMExecutor struct {
	selector model.Selector
	opts     options
}

// NewLLMExecutor returns an executor that picks its model per engineer
// kind from sel.
func NewLLMExecutor(sel model.Selector, opts ...Option) *LLMExecutor {
	return &LLMExecutor{selector: sel, opts: buildOptions(opts)}
}

// Execute implements WorkExecutor.
func (x *LLMExecutor) Execute(ctx context.Context, item team.WorkItem, engineer team.Assignment) (string, error) {
	agent := string(engineer.Kind)
	m := x.selector.ForAgent(agent)
	if m == nil {
		return "", fmt.Errorf("no model configured for %s", agent)
	}
	system, prompt, verb := seniorPrompts(item, engineer)
	if engineer.Kind == team.KindQAEngineer {
		system, prompt, verb = qaPrompts(item, engineer)
	}
	text, err := x.opts.chat(ctx, m, agent, system, prompt)
	if err != nil {
		return "", fmt.Errorf("%s failed on %s: %w", engineer, item.ID, err)
	}
	if text == "" {
		return "", fmt.Errorf("%s failed on %s: %w", engineer, item.ID, model.ErrEmptyResponse)
	}
	return fmt.Sprintf("%s by %s: %s", verb, engineer, text), nil
}

func seniorPrompts(item team.WorkItem, engineer team.Assignment) (system, prompt, verb string) {
	system = fmt.Sprintf(`You are a Senior Software Engineer responsible for development work.

Analyze the technical requirements, design and implement a solution, and
describe the testing it needs.

Current assignment: %s
Description: %s
Engineer ID: %s`, item.Title, item.Description, engineer)
	prompt = fmt.Sprintf("Please analyze and implement this development task:\n\nTask: %s\nRequirements: %s\n\nProvide your technical approach and implementation details.", item.Title, item.Description)
	return system, prompt, "Development completed"
}

func qaPrompts(item team.WorkItem, engineer team.Assignment) (system, prompt, verb string) {
	system = fmt.Sprintf(`You are a QA Engineer responsible for testing and quality assurance.

Design a test strategy, execute it, and report quality issues.

Current assignment: %s
Description: %s
QA Engineer ID: %s`, item.Title, item.Description, engineer)
	prompt = fmt.Sprintf("Please perform comprehensive QA testing on this work:\n\nTask: %s\nRequirements: %s", item.Title, item.Description)
	if item.Result != "" {
		prompt += "\n\nDeliverable:\n" + item.Result
	}
	return system, prompt + "\n\nProvide your testing strategy, execution results, and quality assessment.", "QA testing completed"
}

// LoopBounds configures the evaluation loop attached to developed work.
// Zero fields keep the ladder defaults.
type LoopBounds struct {
	MaxLoops       int
	MaxEscalations int
	MaxTicks       int
}

func (b LoopBounds) newLoop() *team.EvaluationLoop {
	l := team.NewEvaluationLoop()
	if b.MaxLoops > 0 {
		l.MaxLoops = b.MaxLoops
	}
	if b.MaxEscalations > 0 {
		l.MaxEscalations = b.MaxEscalations
	}
	l.MaxTicks = b.MaxTicks
	return l
}

// SeniorEngineer develops the first assigned senior-engineer item and
// hands it to evaluation: the item leaves the work queue and enters the
// evaluation queue at the development stage. A failed execution moves the
// item to failed work with the error as its result.
func SeniorEngineer(exec WorkExecutor, bounds LoopBounds, opts ...Option) Func {
	o := buildOptions(opts)
	if exec == nil {
		exec = CannedExecutor{}
	}
	return func(ctx context.Context, s team.State) team.Delta {
		item, ok := firstAssigned(s.WorkQueue, team.KindSeniorEngineer)
		if !ok {
			return team.Delta{Phase: phaseAfterExecution(s.WorkQueue)}
		}
		engineer := *item.AssignedTo
		result, err := exec.Execute(ctx, item, engineer)
		queue := team.RemoveByID(s.WorkQueue, item.ID)
		if err != nil {
			return o.fail(s, queue, item, engineer, err)
		}

		item.Status = team.StatusEvaluation
		item.Result = result
		item.EvaluationLoop = bounds.newLoop()
		o.logger.Info("development handed to evaluation",
			zap.String("work_item", item.ID),
			zap.Stringer("engineer", engineer),
		)
		return team.Delta{
			WorkQueue:       queue,
			EvaluationQueue: team.Append(s.EvaluationQueue, item),
			Phase:           team.PhaseEvaluation,
			Messages:        []string{fmt.Sprintf("Senior Engineer %s: %s", engineer, preview(result, 200))},
		}
	}
}

// QAEngineer tests the first assigned QA item. QA is terminal: the item
// is completed and moved to completed work.
func QAEngineer(exec WorkExecutor, opts ...Option) Func {
	o := buildOptions(opts)
	if exec == nil {
		exec = CannedExecutor{}
	}
	return func(ctx context.Context, s team.State) team.Delta {
		item, ok := firstAssigned(s.WorkQueue, team.KindQAEngineer)
		if !ok {
			return team.Delta{Phase: phaseAfterExecution(s.WorkQueue)}
		}
		engineer := *item.AssignedTo
		result, err := exec.Execute(ctx, item, engineer)
		queue := team.RemoveByID(s.WorkQueue, item.ID)
		if err != nil {
			return o.fail(s, queue, item, engineer, err)
		}

		item.Status = team.StatusCompleted
		if item.Result != "" {
			item.Result += "\n\n" + result
		} else {
			item.Result = result
		}
		o.logger.Info("qa completed", zap.String("work_item", item.ID), zap.Stringer("engineer", engineer))
		return team.Delta{
			WorkQueue:     queue,
			CompletedWork: team.Append(s.CompletedWork, item),
			Phase:         phaseAfterExecution(queue),
			Messages:      []string{fmt.Sprintf("QA Engineer %s: %s", engineer, preview(result, 200))},
		}
	}
}

func (o options) fail(s team.State, queue []team.WorkItem, item team.WorkItem, engineer team.Assignment, err error) team.Delta {
	o.logger.Warn("work item execution failed",
		zap.String("work_item", item.ID),
		zap.Stringer("engineer", engineer),
		zap.Error(err),
	)
	item.Status = team.StatusFailed
	item.Result = fmt.Sprintf("Execution failed for '%s' by %s: %v", item.Title, engineer, err)
	return team.Delta{
		WorkQueue:  queue,
		FailedWork: team.Append(s.FailedWork, item),
		Phase:      phaseAfterExecution(queue),
		Messages:   []string{item.Result},
	}
}

// HasAssignedWork reports whether an item in the work queue is assigned to
// an engineer of the given kind.
func HasAssignedWork(s team.State, kind team.RoleKind) bool {
	_, ok := firstAssigned(s.WorkQueue, kind)
	return ok
}

func firstAssigned(queue []team.WorkItem, kind team.RoleKind) (team.WorkItem, bool) {
	for _, w := range queue {
		if w.Status == team.StatusAssigned && w.AssignedKind() == kind {
			return w.Clone(), true
		}
	}
	return team.WorkItem{}, false
}
