package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/team"
)

func evalItem(id string, stage team.Stage, loop, esc int) team.WorkItem {
	w := team.NewWorkItem(id, "Core Implementation", "Implement core functionality", 3, "cto")
	w.Status = team.StatusEvaluation
	a := team.SeniorEngineer(0, 0)
	w.AssignedTo = &a
	l := team.NewEvaluationLoop()
	l.Stage = stage
	l.LoopCount = loop
	l.EscalationCount = esc
	w.EvaluationLoop = l
	return w
}

func stateWith(items ...team.WorkItem) team.State {
	s := team.NewState(team.DefaultResourceLimits())
	s.EvaluationQueue = items
	return s
}

var evaluators = map[team.Stage]*Evaluator{
	team.StageDevelopment:     Development(),
	team.StageUnitTest:        UnitTest(),
	team.StageSelfReview:      SelfReview(),
	team.StagePeerReview:      PeerReview(),
	team.StageIntegrationTest: IntegrationTest(),
	team.StageManagerReview:   ManagerReview(),
	team.StageCTOReview:       CTOReview(),
}

type testingT interface {
	Helper()
	require.TestingT
}

func tick(t testingT, s team.State) team.State {
	t.Helper()
	require.NotEmpty(t, s.EvaluationQueue)
	e, ok := evaluators[s.EvaluationQueue[0].Stage()]
	require.True(t, ok, "no evaluator for %s", s.EvaluationQueue[0].Stage())
	return team.Reduce(s, e.Evaluate(context.Background(), s))
}

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		name   string
		stage  team.Stage
		loop   int
		esc    int
		rework team.Stage
		in     Input
		want   Outcome
	}{
		{"development intake", team.StageDevelopment, 0, 0, "", Input{},
			Outcome{Stage: team.StageUnitTest, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"unit test retry", team.StageUnitTest, 1, 0, "", Input{},
			Outcome{Stage: team.StageUnitTest, LoopCount: 2, Status: team.StatusInProgress, Queue: QueueEvaluation}},
		{"unit test advance", team.StageUnitTest, 3, 1, "", Input{},
			Outcome{Stage: team.StageSelfReview, LoopCount: 1, EscalationCount: 1, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"unit test returns from rework", team.StageUnitTest, 3, 0, team.StagePeerReview, Input{},
			Outcome{Stage: team.StagePeerReview, LoopCount: 3, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"self review retry", team.StageSelfReview, 1, 0, "", Input{},
			Outcome{Stage: team.StageUnitTest, LoopCount: 2, ReworkFor: team.StageSelfReview, Status: team.StatusInProgress, Queue: QueueEvaluation}},
		{"self review advance", team.StageSelfReview, 3, 0, "", Input{},
			Outcome{Stage: team.StagePeerReview, LoopCount: 1, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"peer review advance", team.StagePeerReview, 3, 0, "", Input{},
			Outcome{Stage: team.StageIntegrationTest, LoopCount: 1, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"integration to manager", team.StageIntegrationTest, 1, 2, "", Input{},
			Outcome{Stage: team.StageManagerReview, LoopCount: 1, EscalationCount: 2, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"integration completes", team.StageIntegrationTest, 1, 3, "", Input{},
			Outcome{Stage: team.StageCompleted, LoopCount: 1, EscalationCount: 3, Status: team.StatusCompleted, Queue: QueueCompleted}},
		{"manager to cto", team.StageManagerReview, 1, 0, "", Input{},
			Outcome{Stage: team.StageCTOReview, LoopCount: 1, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"cto restarts ladder", team.StageCTOReview, 2, 1, "", Input{},
			Outcome{Stage: team.StageUnitTest, LoopCount: 1, EscalationCount: 2, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"cto escalates to human", team.StageCTOReview, 1, 3, "", Input{},
			Outcome{Stage: team.StageHumanEscalation, LoopCount: 1, EscalationCount: 3, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"reviewer escalation", team.StagePeerReview, 1, 0, "", Input{Escalate: true},
			Outcome{Stage: team.StageHumanEscalation, LoopCount: 1, Status: team.StatusEvaluation, Queue: QueueEvaluation}},
		{"human approve", team.StageHumanEscalation, 1, 3, "", Input{Decision: team.DecisionApprove},
			Outcome{Stage: team.StageCompleted, LoopCount: 1, EscalationCount: 3, Status: team.StatusCompleted, Queue: QueueCompleted}},
		{"human redirect", team.StageHumanEscalation, 2, 3, "", Input{Decision: team.DecisionRedirect},
			Outcome{Stage: team.StageUnitTest, LoopCount: 1, Status: team.StatusInProgress, Queue: QueueEvaluation, ResetTicks: true}},
		{"human reject", team.StageHumanEscalation, 1, 3, "", Input{Decision: team.DecisionReject},
			Outcome{Stage: team.StageFailed, LoopCount: 1, EscalationCount: 3, Status: team.StatusFailed, Queue: QueueFailed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := team.NewEvaluationLoop()
			l.Stage, l.LoopCount, l.EscalationCount, l.ReworkFor = tt.stage, tt.loop, tt.esc, tt.rework
			assert.Equal(t, tt.want, Transition(*l, tt.in))
		})
	}

	l := team.NewEvaluationLoop()
	l.Stage = team.StageHumanEscalation
	assert.True(t, Transition(*l, Input{}).Awaiting)
}

func TestUnitTest_RetriesThenAdvances(t *testing.T) {
	s := stateWith(evalItem("work_1", team.StageUnitTest, 0, 0))

	for want := 1; want <= 3; want++ {
		s = tick(t, s)
		w := s.EvaluationQueue[0]
		assert.Equal(t, team.StageUnitTest, w.Stage())
		assert.Equal(t, team.StatusInProgress, w.Status)
		assert.Equal(t, want, w.EvaluationLoop.LoopCount)
	}

	s = tick(t, s)
	w := s.EvaluationQueue[0]
	assert.Equal(t, team.StageSelfReview, w.Stage())
	assert.Equal(t, 1, w.EvaluationLoop.LoopCount)

	require.Len(t, w.EvaluationLoop.Feedback, 4)
	for _, f := range w.EvaluationLoop.Feedback {
		assert.Equal(t, team.StageUnitTest, f.Stage)
		assert.Equal(t, "unit_test_evaluator", f.Evaluator)
		assert.Equal(t, CannedFeedback(team.StageUnitTest), f.Feedback)
	}
}

func TestEvaluate_OnlyTouchesOwnStage(t *testing.T) {
	s := stateWith(
		evalItem("a", team.StagePeerReview, 1, 0),
		evalItem("b", team.StageUnitTest, 0, 0),
	)
	before, err := team.DeepCopy(s)
	require.NoError(t, err)

	d := UnitTest().Evaluate(context.Background(), s)
	assert.Equal(t, before, s, "input state not mutated")
	after := team.Reduce(s, d)
	assert.Equal(t, s.EvaluationQueue[0], after.EvaluationQueue[0])
	assert.Equal(t, 1, after.EvaluationQueue[1].EvaluationLoop.LoopCount)

	assert.Equal(t, team.Delta{}, CTOReview().Evaluate(context.Background(), s))
}

func TestFullLadder_CompletesWithCannedReviewers(t *testing.T) {
	s := stateWith(evalItem("work_1", team.StageDevelopment, 0, 0))

	ticks := 0
	for len(s.EvaluationQueue) > 0 {
		s = tick(t, s)
		ticks++
		require.NoError(t, team.CheckInvariants(s))
		require.LessOrEqual(t, ticks, team.LadderBound(team.DefaultMaxLoops, team.DefaultMaxEscalations))
	}

	require.Len(t, s.CompletedWork, 1)
	done := s.CompletedWork[0]
	assert.Equal(t, team.StatusCompleted, done.Status)
	assert.Equal(t, team.StageCompleted, done.Stage())
	assert.Equal(t, team.DefaultMaxEscalations, done.EvaluationLoop.EscalationCount)
	assert.Len(t, done.EvaluationLoop.Feedback, ticks)
}

func TestLadderTermination(t *testing.T) {
	starts := []team.Stage{
		team.StageDevelopment, team.StageUnitTest, team.StageSelfReview, team.StagePeerReview,
		team.StageIntegrationTest, team.StageManagerReview, team.StageCTOReview,
	}
	rapid.Check(t, func(t *rapid.T) {
		maxLoops := rapid.IntRange(1, 5).Draw(t, "maxLoops")
		maxEsc := rapid.IntRange(0, 4).Draw(t, "maxEsc")
		stage := rapid.SampledFrom(starts).Draw(t, "stage")

		w := evalItem("x", stage, rapid.IntRange(0, maxLoops).Draw(t, "loop"), rapid.IntRange(0, maxEsc).Draw(t, "esc"))
		w.EvaluationLoop.MaxLoops = maxLoops
		w.EvaluationLoop.MaxEscalations = maxEsc
		w.EvaluationLoop.MaxTicks = 1 << 30
		if stage == team.StageUnitTest {
			w.EvaluationLoop.ReworkFor = rapid.SampledFrom([]team.Stage{"", team.StageSelfReview, team.StagePeerReview}).Draw(t, "rework")
		}
		s := stateWith(w)

		bound := team.LadderBound(maxLoops, maxEsc)
		for ticks := 0; ; ticks++ {
			if len(s.EvaluationQueue) == 0 || s.EvaluationQueue[0].Stage() == team.StageHumanEscalation {
				return
			}
			if ticks >= bound {
				t.Fatalf("no terminal stage after %d ticks, at %s", ticks, s.EvaluationQueue[0].Stage())
			}
			s = tick(t, s)
			if err := team.CheckInvariants(s); err != nil {
				t.Fatal(err)
			}
		}
	})
}

func TestTickBudget_ForcesHumanEscalation(t *testing.T) {
	w := evalItem("work_1", team.StageUnitTest, 0, 0)
	w.EvaluationLoop.MaxTicks = 2
	s := stateWith(w)

	s = tick(t, s)
	s = tick(t, s)
	assert.Equal(t, team.StageUnitTest, s.EvaluationQueue[0].Stage())
	s = tick(t, s)

	got := s.EvaluationQueue[0].EvaluationLoop
	assert.Equal(t, team.StageHumanEscalation, got.Stage)
	assert.Contains(t, got.Feedback[len(got.Feedback)-1].Feedback, "Tick budget of 2 exceeded")
}

func TestReviewerEscalation(t *testing.T) {
	r := ReviewerFunc(func(context.Context, team.Stage, team.WorkItem) (Verdict, error) {
		return Verdict{Feedback: "security sign-off required", Escalate: true}, nil
	})
	s := stateWith(evalItem("work_1", team.StagePeerReview, 1, 0))

	s = team.Reduce(s, PeerReview(WithReviewer(r)).Evaluate(context.Background(), s))
	got := s.EvaluationQueue[0].EvaluationLoop
	assert.Equal(t, team.StageHumanEscalation, got.Stage)
	assert.Equal(t, "security sign-off required", got.Feedback[0].Feedback)
}

func TestReviewerError_FallsBackToCanned(t *testing.T) {
	r := ReviewerFunc(func(context.Context, team.Stage, team.WorkItem) (Verdict, error) {
		return Verdict{}, errors.New("unavailable")
	})
	s := stateWith(evalItem("work_1", team.StageSelfReview, 1, 0))

	s = team.Reduce(s, SelfReview(WithReviewer(r)).Evaluate(context.Background(), s))
	assert.Equal(t, CannedFeedback(team.StageSelfReview), s.EvaluationQueue[0].EvaluationLoop.Feedback[0].Feedback)
}

func TestHoldForAggregation(t *testing.T) {
	s := stateWith(evalItem("work_2", team.StageIntegrationTest, 1, 3))
	s.ActiveEngineers[0] = team.NewTeamRegistry().FormTeam(0, 2)

	held := team.Reduce(s, IntegrationTest(WithHoldForAggregation(true)).Evaluate(context.Background(), s))
	require.Len(t, held.EvaluationQueue, 1)
	assert.Empty(t, held.CompletedWork)
	assert.True(t, IsHeld(held.EvaluationQueue[0]))
	assert.Equal(t, team.StatusEvaluation, held.EvaluationQueue[0].Status)
	require.NoError(t, team.CheckInvariants(held))

	assert.True(t, Releasable(held))
	released := team.Reduce(held, Release(context.Background(), held))
	assert.Empty(t, released.EvaluationQueue)
	require.Len(t, released.CompletedWork, 1)
	assert.Equal(t, team.StatusCompleted, released.CompletedWork[0].Status)
	require.NoError(t, team.CheckInvariants(released))

	direct := team.Reduce(s, IntegrationTest().Evaluate(context.Background(), s))
	assert.Empty(t, direct.EvaluationQueue)
	assert.Len(t, direct.CompletedWork, 1)
}

func TestReleasable_WaitsForPartners(t *testing.T) {
	held := evalItem("work_2", team.StageCompleted, 1, 3)
	partner := evalItem("work_3", team.StagePeerReview, 1, 0)
	s := stateWith(held, partner)
	assert.False(t, Releasable(s))
	assert.Equal(t, team.Delta{}, Release(context.Background(), s))

	s = stateWith(held, evalItem("work_3", team.StageCompleted, 1, 3))
	assert.False(t, Releasable(s), "two held items belong to the aggregator")
}

func TestHumanEscalation(t *testing.T) {
	h := NewHumanEscalation(nil)
	s := stateWith(
		evalItem("a", team.StageHumanEscalation, 1, 3),
		evalItem("b", team.StageHumanEscalation, 1, 3),
		evalItem("c", team.StageHumanEscalation, 1, 3),
		evalItem("d", team.StageHumanEscalation, 1, 3),
	)

	s = team.Reduce(s, h.Evaluate(context.Background(), s))
	assert.Equal(t, []string{"a", "b", "c", "d"}, s.AwaitingHuman)
	assert.Equal(t, []string{"a", "b", "c", "d"}, AwaitingDecision(s))

	_, err := RecordDecisions(s, map[string]team.HumanDecision{"zzz": {Decision: team.DecisionApprove}})
	assert.ErrorIs(t, err, ErrNotAwaiting)
	_, err = RecordDecisions(s, map[string]team.HumanDecision{"a": {Decision: "maybe"}})
	assert.ErrorIs(t, err, ErrInvalidDecision)

	d, err := RecordDecisions(s, map[string]team.HumanDecision{
		"a": {Decision: team.DecisionApprove, Feedback: "ship it"},
		"b": {Decision: team.DecisionRedirect, Feedback: "add audit logging"},
		"c": {Decision: team.DecisionReject, Feedback: "out of scope"},
	})
	require.NoError(t, err)
	s = team.Reduce(s, d)
	assert.Equal(t, []string{"d"}, AwaitingDecision(s))

	s = team.Reduce(s, h.Evaluate(context.Background(), s))
	require.NoError(t, team.CheckInvariants(s))
	assert.Equal(t, []string{"d"}, s.AwaitingHuman)
	assert.Empty(t, s.PendingDecisions)

	require.Len(t, s.CompletedWork, 1)
	assert.Equal(t, "a", s.CompletedWork[0].ID)
	fb := s.CompletedWork[0].EvaluationLoop.Feedback
	assert.Equal(t, "Human decision: approve - ship it", fb[len(fb)-1].Feedback)
	assert.Equal(t, "human_escalation_evaluator", fb[len(fb)-1].Evaluator)

	require.Len(t, s.FailedWork, 1)
	assert.Equal(t, "c", s.FailedWork[0].ID)
	assert.Equal(t, team.StageFailed, s.FailedWork[0].Stage())

	require.Len(t, s.EvaluationQueue, 2)
	redirected := s.EvaluationQueue[0]
	assert.Equal(t, "b", redirected.ID)
	assert.Equal(t, team.StageUnitTest, redirected.Stage())
	assert.Equal(t, team.StatusInProgress, redirected.Status)
	assert.Equal(t, 0, redirected.EvaluationLoop.EscalationCount)
	assert.Equal(t, 1, redirected.EvaluationLoop.LoopCount)
}

func TestParseVerdict(t *testing.T) {
	v := ParseVerdict("Looks fine overall.\nescalate: needs legal review\n")
	assert.True(t, v.Escalate)
	assert.Equal(t, "Looks fine overall.\nneeds legal review", v.Feedback)

	v = ParseVerdict("Escalation paths are documented.")
	assert.False(t, v.Escalate)
	assert.Equal(t, "Escalation paths are documented.", v.Feedback)
}

func TestLLMReviewer(t *testing.T) {
	m := model.NewMockChatModel("Tests cover the happy path only.")
	costs := model.NewCostTracker()
	r := NewLLMReviewer(m, WithReviewerCosts(costs))

	v, err := r.Review(context.Background(), team.StageUnitTest, evalItem("w", team.StageUnitTest, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, "Tests cover the happy path only.", v.Feedback)
	assert.Contains(t, m.Calls[0][0].Content, "unit test reviewer")
	require.Len(t, costs.Calls(), 1)
	assert.Equal(t, "unit_test_evaluator", costs.Calls()[0].Agent)

	failing := NewLLMReviewer(&model.MockChatModel{Err: errors.New("quota")})
	v, err = failing.Review(context.Background(), team.StageCTOReview, evalItem("w", team.StageCTOReview, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, CannedFeedback(team.StageCTOReview), v.Feedback)
}
