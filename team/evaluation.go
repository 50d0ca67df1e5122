package team

// Stage is a rung of the evaluation ladder.
type Stage string

const (
	StageDevelopment     Stage = "development"
	StageUnitTest        Stage = "unit_test"
	StageSelfReview      Stage = "self_review"
	StagePeerReview      Stage = "peer_review"
	StageIntegrationTest Stage = "integration_test"
	StageManagerReview   Stage = "manager_review"
	StageCTOReview       Stage = "cto_review"
	StageHumanEscalation Stage = "human_escalation"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

// Stages lists every stage in ladder order.
var Stages = []Stage{
	StageDevelopment,
	StageUnitTest,
	StageSelfReview,
	StagePeerReview,
	StageIntegrationTest,
	StageManagerReview,
	StageCTOReview,
	StageHumanEscalation,
	StageCompleted,
	StageFailed,
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no evaluator acts on s any more.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Ladder defaults.
const (
	DefaultMaxLoops       = 3
	DefaultMaxEscalations = 3
)

// FeedbackRecord is one entry of the append-only evaluation audit trail.
type FeedbackRecord struct {
	Stage     Stage  `json:"stage"`
	Feedback  string `json:"feedback"`
	Evaluator string `json:"evaluator"`
}

// EvaluationLoop is the evaluation ladder state embedded in a WorkItem.
//
// LoopCount bounds the retries of the current rung and is reset to 1 when the
// ladder advances. EscalationCount bounds how many times the ladder restarts
// from unit_test after a CTO review. Neither may exceed its maximum.
type EvaluationLoop struct {
	Stage           Stage `json:"current_stage"`
	LoopCount       int   `json:"loop_count"`
	MaxLoops        int   `json:"max_loops"`
	EscalationCount int   `json:"escalation_count"`
	MaxEscalations  int   `json:"max_escalations"`

	// ReworkFor is the stage that sent the item back to unit_test. It is
	// empty outside of a rework detour.
	ReworkFor Stage `json:"rework_for,omitempty"`

	// Ticks counts evaluator passes over the item. When MaxTicks is
	// positive and Ticks exceeds it the item is forced to human escalation.
	Ticks    int `json:"ticks"`
	MaxTicks int `json:"max_ticks,omitempty"`

	Feedback []FeedbackRecord `json:"feedback"`
}

// NewEvaluationLoop returns a loop at the development stage with default
// bounds.
func NewEvaluationLoop() *EvaluationLoop {
	return &EvaluationLoop{
		Stage:          StageDevelopment,
		MaxLoops:       DefaultMaxLoops,
		MaxEscalations: DefaultMaxEscalations,
		Feedback:       []FeedbackRecord{},
	}
}

// Clone returns a deep copy of l.
func (l *EvaluationLoop) Clone() *EvaluationLoop {
	if l == nil {
		return nil
	}
	out := *l
	out.Feedback = make([]FeedbackRecord, len(l.Feedback))
	copy(out.Feedback, l.Feedback)
	return &out
}

// AddFeedback appends an audit record.
func (l *EvaluationLoop) AddFeedback(stage Stage, feedback, evaluator string) {
	l.Feedback = append(l.Feedback, FeedbackRecord{
		Stage:     stage,
		Feedback:  feedback,
		Evaluator: evaluator,
	})
}

// TickBudget returns the tick limit in force for the loop. A zero MaxTicks
// derives the limit from the ladder bound: one full ladder costs at most
// MaxLoops*5+3 ticks and the ladder runs at most MaxEscalations+1 times.
func (l *EvaluationLoop) TickBudget() int {
	if l.MaxTicks > 0 {
		return l.MaxTicks
	}
	return LadderBound(l.MaxLoops, l.MaxEscalations)
}

// LadderBound is the number of evaluator ticks within which a loop driven
// only by the evaluators reaches completed, failed or human_escalation.
// The two extra ticks cover the development intake and a first unit_test
// pass from loop_count 0.
func LadderBound(maxLoops, maxEscalations int) int {
	return (maxEscalations+1)*(maxLoops*5+3) + 2
}
