package team

import "time"

// Dimension is one of the six fixed complexity scoring axes.
type Dimension string

const (
	DimensionScope             Dimension = "scope"
	DimensionTechnicalDepth    Dimension = "technical_depth"
	DimensionIntegrationPoints Dimension = "integration_points"
	DimensionTimelinePressure  Dimension = "timeline_pressure"
	DimensionRiskLevel         Dimension = "risk_level"
	DimensionCoordinationNeeds Dimension = "coordination_needs"
)

// Dimensions lists the scoring axes in prompt order.
var Dimensions = []Dimension{
	DimensionScope,
	DimensionTechnicalDepth,
	DimensionIntegrationPoints,
	DimensionTimelinePressure,
	DimensionRiskLevel,
	DimensionCoordinationNeeds,
}

// ResourceLimits is the human-set ceiling on team size.
type ResourceLimits struct {
	MaxManagers            int  `json:"max_managers" yaml:"max_managers"`
	MaxEngineersPerManager int  `json:"max_engineers_per_manager" yaml:"max_engineers_per_manager"`
	MaxTotalWorkers        int  `json:"max_total_workers" yaml:"max_total_workers"`
	AllowIterations        bool `json:"allow_iterations" yaml:"allow_iterations"`
	MaxIterations          int  `json:"max_iterations" yaml:"max_iterations"`
}

// DefaultResourceLimits returns 3 managers, 3 engineers each, 9 workers in
// total, with up to 3 iterations allowed.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxManagers:            3,
		MaxEngineersPerManager: 3,
		MaxTotalWorkers:        9,
		AllowIterations:        true,
		MaxIterations:          3,
	}
}

// Assessment is the team-shape recommendation derived from a project goal.
//
// RecommendedManagers, RecommendedEngineersPerManager and
// TotalRecommendedWorkers are clamped to the ResourceLimits they were
// computed against. RequiresIteration is computed from the unclamped
// RawManagers*RawEngineersPerManager, so an assessment whose total already
// fits the limits may still recommend iterating.
type Assessment struct {
	OverallScore    float64               `json:"overall_score" yaml:"overall_score"`
	DimensionScores map[Dimension]float64 `json:"dimension_scores" yaml:"dimension_scores"`

	RecommendedManagers            int `json:"recommended_managers" yaml:"recommended_managers"`
	RecommendedEngineersPerManager int `json:"recommended_engineers_per_manager" yaml:"recommended_engineers_per_manager"`
	TotalRecommendedWorkers        int `json:"total_recommended_workers" yaml:"total_recommended_workers"`

	RawManagers            int `json:"raw_managers" yaml:"raw_managers"`
	RawEngineersPerManager int `json:"raw_engineers_per_manager" yaml:"raw_engineers_per_manager"`

	Reasoning         string `json:"reasoning" yaml:"reasoning"`
	RequiresIteration bool   `json:"requires_iteration" yaml:"requires_iteration"`
	IterationStrategy string `json:"iteration_strategy,omitempty" yaml:"iteration_strategy,omitempty"`

	// Fallback is set when the assessment was synthesized because the
	// model call failed.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// RawTotal is the unclamped worker count the model asked for.
func (a Assessment) RawTotal() int {
	return a.RawManagers * a.RawEngineersPerManager
}

// IterationResult is the audit record of one finished iteration.
type IterationResult struct {
	Iteration     int       `json:"iteration"`
	Timestamp     time.Time `json:"timestamp"`
	CompletedWork []string  `json:"completed_work"`
	Summary       string    `json:"summary"`
}

// IterationState tracks multi-pass execution when the ideal team exceeds
// the worker ceiling. Batches holds the work item ids of each planned batch.
// Results only grows: one record is appended per finished iteration.
type IterationState struct {
	IsIterative      bool              `json:"is_iterative"`
	CurrentIteration int               `json:"current_iteration"`
	TotalIterations  int               `json:"total_iterations"`
	Batches          [][]string        `json:"iteration_work_batches,omitempty"`
	Results          []IterationResult `json:"iteration_results,omitempty"`
}

// CurrentBatch returns the ids of the batch being executed, or nil when not
// iterating.
func (s IterationState) CurrentBatch() []string {
	if !s.IsIterative || s.CurrentIteration < 0 || s.CurrentIteration >= len(s.Batches) {
		return nil
	}
	return s.Batches[s.CurrentIteration]
}

// HasNext reports whether another planned batch follows the current one.
func (s IterationState) HasNext() bool {
	return s.IsIterative && s.CurrentIteration+1 < s.TotalIterations
}
