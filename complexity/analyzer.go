// Package complexity sizes the development team for a project goal.
//
// The Analyzer asks a chat model to score a goal along six dimensions and
// recommend a team shape, then clamps the recommendation to the caller's
// ResourceLimits. The IterationManager splits work into batches when the
// ideal team does not fit under the worker ceiling.
package complexity

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/team"
)

// DefaultTimeout bounds a single assessment call.
const DefaultTimeout = 60 * time.Second

// Field defaults used when the model omits or garbles a value.
const (
	DefaultScore              = 5.0
	DefaultManagers           = 1
	DefaultEngineers          = 2
	DefaultReasoning          = "No reasoning provided"
	FallbackReasoning         = "Fallback assessment due to analysis error"
	fallbackTotalWorkers      = 3
	defaultWorkContextMessage = "No additional context provided"
)

// Analyzer scores project goals with a chat model.
type Analyzer struct {
	model   model.ChatModel
	timeout time.Duration
	logger  *zap.Logger
	costs   *model.CostTracker
	agent   string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTimeout overrides DefaultTimeout. Non-positive values disable the
// per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCostTracker records token usage of every successful call.
func WithCostTracker(ct *model.CostTracker) Option {
	return func(a *Analyzer) { a.costs = ct }
}

// NewAnalyzer returns an Analyzer backed by m.
func NewAnalyzer(m model.ChatModel, opts ...Option) *Analyzer {
	a := &Analyzer{
		model:   m,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
		agent:   "complexity_analyzer",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assess scores goal and recommends a team shape within limits.
//
// Assess never fails. When the model call errors, times out or returns
// nothing, a conservative fallback assessment is returned and the failure
// is logged.
func (a *Analyzer) Assess(ctx context.Context, goal, workContext string, limits team.ResourceLimits) team.Assessment {
	if a.model == nil {
		a.logger.Warn("complexity analysis has no model, using fallback")
		return Fallback()
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := a.model.Chat(callCtx, []model.Message{
		model.System(systemPrompt),
		model.User(taskPrompt(goal, workContext, limits)),
	})
	if err == nil && strings.TrimSpace(out.Text) == "" {
		err = model.ErrEmptyResponse
	}
	if err != nil {
		a.logger.Warn("complexity analysis failed, using fallback",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return Fallback()
	}
	if a.costs != nil {
		a.costs.RecordLLMCall(out.Model, out.Usage.InputTokens, out.Usage.OutputTokens, a.agent)
	}

	assessment := Parse(out.Text, limits)
	a.logger.Info("complexity assessed",
		zap.Float64("overall", assessment.OverallScore),
		zap.Int("managers", assessment.RecommendedManagers),
		zap.Int("engineers_per_manager", assessment.RecommendedEngineersPerManager),
		zap.Int("total_workers", assessment.TotalRecommendedWorkers),
		zap.Bool("requires_iteration", assessment.RequiresIteration),
	)
	return assessment
}

// Fallback is the assessment used when the model cannot be consulted.
func Fallback() team.Assessment {
	scores := make(map[team.Dimension]float64, len(team.Dimensions))
	for _, d := range team.Dimensions {
		scores[d] = DefaultScore
	}
	return team.Assessment{
		OverallScore:                   DefaultScore,
		DimensionScores:                scores,
		RecommendedManagers:            DefaultManagers,
		RecommendedEngineersPerManager: DefaultEngineers,
		TotalRecommendedWorkers:        fallbackTotalWorkers,
		RawManagers:                    DefaultManagers,
		RawEngineersPerManager:         DefaultEngineers,
		Reasoning:                      FallbackReasoning,
		Fallback:                       true,
	}
}

var (
	dimensionPatterns = map[team.Dimension]*regexp.Regexp{
		team.DimensionScope:             regexp.MustCompile(`(?i)SCOPE_SCORE:\s*([0-9.]+)`),
		team.DimensionTechnicalDepth:    regexp.MustCompile(`(?i)TECHNICAL_DEPTH_SCORE:\s*([0-9.]+)`),
		team.DimensionIntegrationPoints: regexp.MustCompile(`(?i)INTEGRATION_POINTS_SCORE:\s*([0-9.]+)`),
		team.DimensionTimelinePressure:  regexp.MustCompile(`(?i)TIMELINE_PRESSURE_SCORE:\s*([0-9.]+)`),
		team.DimensionRiskLevel:         regexp.MustCompile(`(?i)RISK_LEVEL_SCORE:\s*([0-9.]+)`),
		team.DimensionCoordinationNeeds: regexp.MustCompile(`(?i)COORDINATION_NEEDS_SCORE:\s*([0-9.]+)`),
	}
	overallPattern   = regexp.MustCompile(`(?i)OVERALL_COMPLEXITY:\s*([0-9.]+)`)
	managersPattern  = regexp.MustCompile(`(?i)RECOMMENDED_MANAGERS:\s*([0-9]+)`)
	engineersPattern = regexp.MustCompile(`(?i)ENGINEERS_PER_MANAGER:\s*([0-9]+)`)
	reasoningPattern = regexp.MustCompile(`(?is)REASONING:\s*(.+?)(?:\n\s*\n|\z)`)
)

// Parse extracts an assessment from a model response. Every field degrades
// to its default independently, so partial responses still yield a usable
// assessment.
//
// RequiresIteration is decided on the raw product of managers and engineers
// before they are clamped to limits; TotalRecommendedWorkers is the product
// after clamping.
func Parse(text string, limits team.ResourceLimits) team.Assessment {
	scores := make(map[team.Dimension]float64, len(team.Dimensions))
	for _, d := range team.Dimensions {
		scores[d] = floatField(dimensionPatterns[d], text, DefaultScore)
	}

	rawManagers := intField(managersPattern, text, DefaultManagers)
	rawEngineers := intField(engineersPattern, text, DefaultEngineers)
	managers := min(rawManagers, limits.MaxManagers)
	engineers := min(rawEngineers, limits.MaxEngineersPerManager)

	reasoning := DefaultReasoning
	if m := reasoningPattern.FindStringSubmatch(text); m != nil {
		if r := strings.TrimSpace(m[1]); r != "" {
			reasoning = r
		}
	}

	a := team.Assessment{
		OverallScore:                   floatField(overallPattern, text, DefaultScore),
		DimensionScores:                scores,
		RecommendedManagers:            managers,
		RecommendedEngineersPerManager: engineers,
		TotalRecommendedWorkers:        managers * engineers,
		RawManagers:                    rawManagers,
		RawEngineersPerManager:         rawEngineers,
		Reasoning:                      reasoning,
	}

	rawTotal := a.RawTotal()
	if limits.AllowIterations && rawTotal > limits.MaxTotalWorkers {
		a.RequiresIteration = true
		a.IterationStrategy = IterationStrategy(rawTotal, limits.MaxTotalWorkers)
	}
	return a
}

// IterationStrategy describes how an oversized team is split into passes.
func IterationStrategy(rawTotal, limit int) string {
	passes := rawTotal + 1
	if limit > 0 {
		passes = rawTotal/limit + 1
	}
	return fmt.Sprintf("Task requires %d workers but limit is %d. Will handle in %d iterations.", rawTotal, limit, passes)
}

func floatField(re *regexp.Regexp, text string, def float64) float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimRight(m[1], "."), 64)
	if err != nil {
		return def
	}
	return v
}

func intField(re *regexp.Regexp, text string, def int) int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return def
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return def
	}
	return v
}

func taskPrompt(goal, workContext string, limits team.ResourceLimits) string {
	if strings.TrimSpace(workContext) == "" {
		workContext = defaultWorkContextMessage
	}
	iterations := "No"
	maxIterations := "N/A"
	if limits.AllowIterations {
		iterations = "Yes"
		maxIterations = strconv.Itoa(limits.MaxIterations)
	}

	var b strings.Builder
	b.WriteString("Analyze this project for optimal team sizing:\n\n")
	fmt.Fprintf(&b, "**PROJECT GOALS:**\n%s\n\n", goal)
	fmt.Fprintf(&b, "**ADDITIONAL CONTEXT:**\n%s\n\n", workContext)
	b.WriteString("**RESOURCE CONSTRAINTS:**\n")
	fmt.Fprintf(&b, "- Maximum Managers: %d\n", limits.MaxManagers)
	fmt.Fprintf(&b, "- Maximum Engineers per Manager: %d\n", limits.MaxEngineersPerManager)
	fmt.Fprintf(&b, "- Maximum Total Workers: %d\n", limits.MaxTotalWorkers)
	fmt.Fprintf(&b, "- Iterations Allowed: %s\n", iterations)
	fmt.Fprintf(&b, "- Maximum Iterations: %s\n\n", maxIterations)
	b.WriteString("Score every dimension and recommend the team structure that fits these constraints.")
	return b.String()
}

const systemPrompt = `You size software development teams.

Score the project on each dimension from 0.0 to 10.0:

1. SCOPE: single feature (0-2) up to a platform or ecosystem (9-10).
2. TECHNICAL_DEPTH: CRUD (0-2), business logic (3-4), advanced algorithms (5-6), distributed or real-time systems (7-8), research-level (9-10).
3. INTEGRATION_POINTS: self-contained (0-2) up to enterprise-wide integration (9-10).
4. TIMELINE_PRESSURE: flexible (0-2) up to emergency (9-10).
5. RISK_LEVEL: internal tool (0-2) up to mission-critical (9-10).
6. COORDINATION_NEEDS: individual work (0-2) up to organisation-wide (9-10).

Then recommend a team: 1-3 managers, each leading 1-3 engineers.

Sizing guide:
- complexity 1-3: 1 manager, 1-2 engineers
- complexity 4-6: 1-2 managers, 2-3 engineers each
- complexity 7-8: 2-3 managers, 3 engineers each
- complexity 9-10: 3 managers, 3 engineers each

Large projects with many integrations need large teams; do not undersize them.

Answer in exactly this format, one field per line:

SCOPE_SCORE: [0.0-10.0]
TECHNICAL_DEPTH_SCORE: [0.0-10.0]
INTEGRATION_POINTS_SCORE: [0.0-10.0]
TIMELINE_PRESSURE_SCORE: [0.0-10.0]
RISK_LEVEL_SCORE: [0.0-10.0]
COORDINATION_NEEDS_SCORE: [0.0-10.0]
OVERALL_COMPLEXITY: [0.0-10.0]
RECOMMENDED_MANAGERS: [1-3]
ENGINEERS_PER_MANAGER: [1-3]
REASONING: [why this team shape fits]`
