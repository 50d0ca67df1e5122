package team

import (
	"encoding/json"
	"fmt"
)

// Phase is the coarse pipeline phase used by the router.
type Phase string

const (
	PhaseGoalSetting         Phase = "goal_setting"
	PhaseGoalSettingComplete Phase = "goal_setting_complete"
	PhaseAssessment          Phase = "complexity_assessed"
	PhaseDelegation          Phase = "delegation"
	PhaseExecution           Phase = "execution"
	PhaseEvaluation          Phase = "evaluation"
	PhaseHumanAssistance     Phase = "human_assistance"
	PhaseReview              Phase = "review"
	PhaseCompleted           Phase = "completed"
)

// Decision is a human verdict on an escalated work item.
type Decision string

const (
	DecisionApprove  Decision = "approve"
	DecisionRedirect Decision = "redirect"
	DecisionReject   Decision = "reject"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionRedirect, DecisionReject:
		return true
	}
	return false
}

// HumanDecision is the persisted answer to a human escalation.
type HumanDecision struct {
	Decision Decision `json:"decision"`
	Feedback string   `json:"feedback"`
}

// State is the single coherent snapshot of the pipeline kept across ticks.
type State struct {
	ProjectGoals string `json:"project_goals"`

	WorkQueue       []WorkItem `json:"work_queue"`
	EvaluationQueue []WorkItem `json:"evaluation_queue"`
	CompletedWork   []WorkItem `json:"completed_work"`
	FailedWork      []WorkItem `json:"failed_work"`

	ActiveManagers  []ManagerID        `json:"active_managers"`
	ActiveEngineers map[ManagerID]Team `json:"active_engineers"`
	Registry        *TeamRegistry      `json:"team_registry,omitempty"`

	AssistanceRequests []AssistanceRequest `json:"human_assistance_requests"`

	Phase      Phase          `json:"current_phase"`
	Assessment *Assessment    `json:"complexity_assessment,omitempty"`
	Limits     ResourceLimits `json:"resource_limits"`
	Iteration  IterationState `json:"iteration_state"`

	// PendingDecisions holds human decisions keyed by work item id until the
	// human escalation evaluator consumes them.
	PendingDecisions map[string]HumanDecision `json:"pending_decisions,omitempty"`

	// AwaitingHuman lists the work items suspended at human escalation.
	AwaitingHuman []string `json:"awaiting_human,omitempty"`

	Messages      []string `json:"messages"`
	ReviewSummary string   `json:"review_summary,omitempty"`
}

// NewState returns an empty state at the goal-setting phase.
func NewState(limits ResourceLimits) State {
	return State{
		WorkQueue:          []WorkItem{},
		EvaluationQueue:    []WorkItem{},
		CompletedWork:      []WorkItem{},
		FailedWork:         []WorkItem{},
		ActiveManagers:     []ManagerID{},
		ActiveEngineers:    map[ManagerID]Team{},
		AssistanceRequests: []AssistanceRequest{},
		Phase:              PhaseGoalSetting,
		Limits:             limits,
	}
}

// Delta is a partial update returned by a role or evaluator function.
//
// Zero fields leave the state unchanged: a nil slice or map keeps the
// previous value while a non-nil one (even empty) replaces it. Messages are
// appended rather than replaced.
type Delta struct {
	ProjectGoals string

	WorkQueue       []WorkItem
	EvaluationQueue []WorkItem
	CompletedWork   []WorkItem
	FailedWork      []WorkItem

	ActiveManagers  []ManagerID
	ActiveEngineers map[ManagerID]Team
	Registry        *TeamRegistry

	AssistanceRequests []AssistanceRequest

	Phase      Phase
	Assessment *Assessment
	Limits     *ResourceLimits
	Iteration  *IterationState

	PendingDecisions map[string]HumanDecision
	AwaitingHuman    []string

	Messages      []string
	ReviewSummary string
}

// Reduce merges delta into prev.
func Reduce(prev State, delta Delta) State {
	if delta.ProjectGoals != "" {
		prev.ProjectGoals = delta.ProjectGoals
	}
	if delta.WorkQueue != nil {
		prev.WorkQueue = delta.WorkQueue
	}
	if delta.EvaluationQueue != nil {
		prev.EvaluationQueue = delta.EvaluationQueue
	}
	if delta.CompletedWork != nil {
		prev.CompletedWork = delta.CompletedWork
	}
	if delta.FailedWork != nil {
		prev.FailedWork = delta.FailedWork
	}
	if delta.ActiveManagers != nil {
		prev.ActiveManagers = delta.ActiveManagers
	}
	if delta.ActiveEngineers != nil {
		prev.ActiveEngineers = delta.ActiveEngineers
	}
	if delta.Registry != nil {
		prev.Registry = delta.Registry
	}
	if delta.AssistanceRequests != nil {
		prev.AssistanceRequests = delta.AssistanceRequests
	}
	if delta.Phase != "" {
		prev.Phase = delta.Phase
	}
	if delta.Assessment != nil {
		prev.Assessment = delta.Assessment
	}
	if delta.Limits != nil {
		prev.Limits = *delta.Limits
	}
	if delta.Iteration != nil {
		prev.Iteration = *delta.Iteration
	}
	if delta.PendingDecisions != nil {
		prev.PendingDecisions = delta.PendingDecisions
	}
	if delta.AwaitingHuman != nil {
		prev.AwaitingHuman = delta.AwaitingHuman
	}
	if len(delta.Messages) > 0 {
		msgs := make([]string, 0, len(prev.Messages)+len(delta.Messages))
		msgs = append(msgs, prev.Messages...)
		prev.Messages = append(msgs, delta.Messages...)
	}
	if delta.ReviewSummary != "" {
		prev.ReviewSummary = delta.ReviewSummary
	}
	return prev
}

// DeepCopy returns a copy of s that shares no memory with it, by JSON round
// trip.
func DeepCopy(s State) (State, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return State{}, fmt.Errorf("failed to marshal state: %w", err)
	}
	var copied State
	if err := json.Unmarshal(data, &copied); err != nil {
		return State{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return copied, nil
}

// HasPendingAssistance reports whether any assistance request is pending.
func (s State) HasPendingAssistance() bool {
	for _, r := range s.AssistanceRequests {
		if r.Pending() {
			return true
		}
	}
	return false
}

// ItemsWithStatus returns the work queue items with the given status.
func (s State) ItemsWithStatus(status Status) []WorkItem {
	var out []WorkItem
	for _, w := range s.WorkQueue {
		if w.Status == status {
			out = append(out, w)
		}
	}
	return out
}
