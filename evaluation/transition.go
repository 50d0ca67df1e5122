// Package evaluation drives work items through the evaluation ladder.
//
// Transition holds the whole stage table. Evaluators are pipeline nodes
// bound to one stage each: they scan the evaluation queue, act only on
// items at their stage, append a feedback record and apply Transition.
// Human escalation is a suspension point resolved by recorded decisions.
package evaluation

import "github.com/dshills/devteam/team"

// Queue names the queue an item belongs in after a transition.
type Queue string

const (
	QueueEvaluation Queue = "evaluation_queue"
	QueueCompleted  Queue = "completed_work"
	QueueFailed     Queue = "failed_work"
)

// Input is what an evaluator observed for an item on one tick.
type Input struct {
	// Escalate sends the item straight to human escalation.
	Escalate bool
	// Decision is the human verdict, read only at human_escalation.
	Decision team.Decision
}

// Outcome is the loop state an item moves to.
type Outcome struct {
	Stage           team.Stage
	LoopCount       int
	EscalationCount int
	ReworkFor       team.Stage
	Status          team.Status
	Queue           Queue

	// Awaiting is set when a human decision is needed and none was given.
	// Nothing else in the outcome is meaningful then.
	Awaiting bool

	// ResetTicks starts a fresh tick budget.
	ResetTicks bool
}

// Transition computes the next ladder position of l.
//
//	stage             advance when            advance to                retry to
//	development       always                  unit_test (counters kept) -
//	unit_test         loop >= max             self_review, loop 1       unit_test, loop+1
//	self_review       loop >= max             peer_review, loop 1       unit_test, loop+1 (rework)
//	peer_review       loop >= max             integration_test, loop 1  unit_test, loop+1 (rework)
//	integration_test  escalations >= max      completed                 manager_review
//	manager_review    always                  cto_review                -
//	cto_review        escalations >= max      human_escalation          unit_test, loop 1, escalations+1
//	human_escalation  decision                approve: completed, redirect: unit_test (counters reset), reject: failed
//
// A unit_test that reaches its advance condition during rework returns to
// the stage that sent the item back, keeping loop_count, so the rework
// spends the sender's retry budget.
func Transition(l team.EvaluationLoop, in Input) Outcome {
	out := Outcome{
		Stage:           l.Stage,
		LoopCount:       l.LoopCount,
		EscalationCount: l.EscalationCount,
		ReworkFor:       l.ReworkFor,
		Status:          team.StatusEvaluation,
		Queue:           QueueEvaluation,
	}

	if in.Escalate && !l.Stage.Terminal() && l.Stage != team.StageHumanEscalation {
		out.Stage = team.StageHumanEscalation
		out.ReworkFor = ""
		return out
	}

	switch l.Stage {
	case team.StageDevelopment:
		out.Stage = team.StageUnitTest

	case team.StageUnitTest:
		switch {
		case l.LoopCount < l.MaxLoops:
			out.LoopCount++
			out.Status = team.StatusInProgress
		case l.ReworkFor != "":
			out.Stage = l.ReworkFor
			out.ReworkFor = ""
		default:
			out.Stage = team.StageSelfReview
			out.LoopCount = 1
		}

	case team.StageSelfReview, team.StagePeerReview:
		if l.LoopCount >= l.MaxLoops {
			out.Stage = nextReview(l.Stage)
			out.LoopCount = 1
			out.ReworkFor = ""
			break
		}
		out.Stage = team.StageUnitTest
		out.LoopCount++
		out.ReworkFor = l.Stage
		out.Status = team.StatusInProgress

	case team.StageIntegrationTest:
		if l.EscalationCount >= l.MaxEscalations {
			out.Stage = team.StageCompleted
			out.Status = team.StatusCompleted
			out.Queue = QueueCompleted
			break
		}
		out.Stage = team.StageManagerReview

	case team.StageManagerReview:
		out.Stage = team.StageCTOReview

	case team.StageCTOReview:
		if l.EscalationCount >= l.MaxEscalations {
			out.Stage = team.StageHumanEscalation
			break
		}
		out.Stage = team.StageUnitTest
		out.LoopCount = 1
		out.EscalationCount++

	case team.StageHumanEscalation:
		switch in.Decision {
		case team.DecisionApprove:
			out.Stage = team.StageCompleted
			out.Status = team.StatusCompleted
			out.Queue = QueueCompleted
		case team.DecisionRedirect:
			out.Stage = team.StageUnitTest
			out.LoopCount = 1
			out.EscalationCount = 0
			out.ReworkFor = ""
			out.Status = team.StatusInProgress
			out.ResetTicks = true
		case team.DecisionReject:
			out.Stage = team.StageFailed
			out.Status = team.StatusFailed
			out.Queue = QueueFailed
		default:
			out.Awaiting = true
		}

	case team.StageCompleted:
		out.Status = team.StatusCompleted
		out.Queue = QueueCompleted

	case team.StageFailed:
		out.Status = team.StatusFailed
		out.Queue = QueueFailed
	}
	return out
}

func nextReview(s team.Stage) team.Stage {
	if s == team.StageSelfReview {
		return team.StagePeerReview
	}
	return team.StageIntegrationTest
}

// Apply writes o into l.
func (o Outcome) Apply(l *team.EvaluationLoop) {
	if o.Awaiting {
		return
	}
	l.Stage = o.Stage
	l.LoopCount = o.LoopCount
	l.EscalationCount = o.EscalationCount
	l.ReworkFor = o.ReworkFor
	if o.ResetTicks {
		l.Ticks = 0
	}
}
