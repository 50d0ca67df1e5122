package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/team"
)

// FallbackGoal is used when no goal can be obtained.
const FallbackGoal = "AI-Powered Customer Support System with basic chatbot functionality"

// ErrNoGoal is returned by a GoalSource that has nothing to offer.
var ErrNoGoal = errors.New("no project goal provided")

// GoalSource is the human prompt channel for the project goal.
type GoalSource interface {
	Goal(ctx context.Context) (string, error)
}

// GoalSourceFunc adapts a function to GoalSource.
type GoalSourceFunc func(ctx context.Context) (string, error)

// Goal implements GoalSource.
func (f GoalSourceFunc) Goal(ctx context.Context) (string, error) { return f(ctx) }

// StaticGoalSource returns a fixed goal.
type StaticGoalSource string

// Goal implements GoalSource.
func (g StaticGoalSource) Goal(context.Context) (string, error) {
	if strings.TrimSpace(string(g)) == "" {
		return "", ErrNoGoal
	}
	return string(g), nil
}

const goalSystemPrompt = `You are a product manager helping to structure project goals.
Create comprehensive, well-structured project goals including:
- Clear objectives
- Technical requirements
- Success criteria
- Timeline considerations`

// LLMGoalSource turns a rough brief into structured project goals.
type LLMGoalSource struct {
	model model.ChatModel
	brief string
	opts  options
}

// NewLLMGoalSource returns a goal source that asks m to structure brief.
func NewLLMGoalSource(m model.ChatModel, brief string, opts ...Option) *LLMGoalSource {
	return &LLMGoalSource{model: m, brief: brief, opts: buildOptions(opts)}
}

// Goal implements GoalSource.
func (g *LLMGoalSource) Goal(ctx context.Context) (string, error) {
	if strings.TrimSpace(g.brief) == "" {
		return "", ErrNoGoal
	}
	text, err := g.opts.chat(ctx, g.model, "human_goal_setting", goalSystemPrompt, g.brief)
	if err != nil {
		return "", fmt.Errorf("structure project goals: %w", err)
	}
	if text == "" {
		return "", ErrNoGoal
	}
	return text, nil
}

// GoalIntake stores the goal supplied by src verbatim. When src fails the
// fallback goal is used so the pipeline can proceed. Once a goal is set the
// role only restates the phase.
func GoalIntake(src GoalSource, opts ...Option) Func {
	o := buildOptions(opts)
	return func(ctx context.Context, s team.State) team.Delta {
		if s.ProjectGoals != "" {
			return team.Delta{Phase: team.PhaseGoalSettingComplete}
		}
		goal, err := src.Goal(ctx)
		if err != nil {
			o.logger.Warn("goal intake failed, using fallback goal", zap.Error(err))
			return team.Delta{
				ProjectGoals: FallbackGoal,
				Phase:        team.PhaseGoalSettingComplete,
				Messages:     []string{"Fallback: basic project goals set"},
			}
		}
		o.logger.Info("project goals set", zap.Int("length", len(goal)))
		return team.Delta{
			ProjectGoals: goal,
			Phase:        team.PhaseGoalSettingComplete,
			Messages:     []string{"Human has set project goals: " + goal},
		}
	}
}

// Assessor produces a complexity assessment. complexity.Analyzer
// implements it.
type Assessor interface {
	Assess(ctx context.Context, goal, workContext string, limits team.ResourceLimits) team.Assessment
}

// ComplexityAssessment runs a once per pipeline and stores the result. The
// CTO and the engineering managers size the team from it.
func ComplexityAssessment(a Assessor, workContext string, opts ...Option) Func {
	o := buildOptions(opts)
	return func(ctx context.Context, s team.State) team.Delta {
		if s.Assessment != nil || s.ProjectGoals == "" {
			return team.Delta{}
		}
		assessment := a.Assess(ctx, s.ProjectGoals, workContext, s.Limits)
		o.logger.Info("complexity assessed",
			zap.Float64("overall", assessment.OverallScore),
			zap.Int("managers", assessment.RecommendedManagers),
			zap.Int("engineers_per_manager", assessment.RecommendedEngineersPerManager),
			zap.Bool("requires_iteration", assessment.RequiresIteration),
			zap.Bool("fallback", assessment.Fallback),
		)
		msgs := []string{fmt.Sprintf("Complexity %.1f/10: %d manager(s) x %d engineer(s), %d worker(s) in total",
			assessment.OverallScore,
			assessment.RecommendedManagers,
			assessment.RecommendedEngineersPerManager,
			assessment.TotalRecommendedWorkers,
		)}
		if assessment.RequiresIteration {
			msgs = append(msgs, assessment.IterationStrategy)
		}
		return team.Delta{
			Assessment: &assessment,
			Phase:      team.PhaseAssessment,
			Messages:   msgs,
		}
	}
}
