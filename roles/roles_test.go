package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/team"
)

var ctx = context.Background()

func newState() team.State {
	return team.NewState(team.DefaultResourceLimits())
}

func pending(ids ...string) []team.WorkItem {
	items := make([]team.WorkItem, len(ids))
	for i, id := range ids {
		items[i] = team.NewWorkItem(id, "Task "+id, "do "+id, len(ids)-i, "cto")
	}
	return items
}

func assigned(id string, a team.Assignment) team.WorkItem {
	w := team.NewWorkItem(id, "Task "+id, "do "+id, 2, "cto")
	w.Status = team.StatusAssigned
	w.AssignedTo = &a
	return w
}

func TestGoalIntake(t *testing.T) {
	d := GoalIntake(StaticGoalSource("Build a payments API"))(ctx, newState())
	assert.Equal(t, "Build a payments API", d.ProjectGoals)
	assert.Equal(t, team.PhaseGoalSettingComplete, d.Phase)
	assert.Equal(t, []string{"Human has set project goals: Build a payments API"}, d.Messages)

	s := team.Reduce(newState(), d)
	again := GoalIntake(StaticGoalSource("something else"))(ctx, s)
	assert.Equal(t, team.Delta{Phase: team.PhaseGoalSettingComplete}, again, "goal is only set once")
}

func TestGoalIntake_FallsBackOnSourceError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := GoalSourceFunc(func(context.Context) (string, error) { return "", errors.New("prompt closed") })

	d := GoalIntake(src, WithLogger(zap.New(core)))(ctx, newState())
	assert.Equal(t, FallbackGoal, d.ProjectGoals)
	assert.Equal(t, team.PhaseGoalSettingComplete, d.Phase)
	assert.Equal(t, 1, logs.FilterMessage("goal intake failed, using fallback goal").Len())

	_, err := StaticGoalSource("  ").Goal(ctx)
	assert.ErrorIs(t, err, ErrNoGoal)
}

func TestLLMGoalSource(t *testing.T) {
	m := model.NewMockChatModel("Objectives:\n- chatbot\n")
	costs := model.NewCostTracker()
	goal, err := NewLLMGoalSource(m, "I need a support chatbot", WithCostTracker(costs)).Goal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Objectives:\n- chatbot", goal)
	require.Len(t, m.Calls, 1)
	assert.Equal(t, model.RoleSystem, m.Calls[0][0].Role)
	assert.Equal(t, "I need a support chatbot", m.Calls[0][1].Content)
	require.Len(t, costs.Calls(), 1)
	assert.Equal(t, "human_goal_setting", costs.Calls()[0].Agent)

	failing := &model.MockChatModel{Err: errors.New("boom")}
	_, err = NewLLMGoalSource(failing, "brief").Goal(ctx)
	assert.Error(t, err)

	_, err = NewLLMGoalSource(model.NewMockChatModel(), "brief").Goal(ctx)
	assert.ErrorIs(t, err, ErrNoGoal)
}

type fixedAssessor struct {
	a     team.Assessment
	calls int
}

func (f *fixedAssessor) Assess(_ context.Context, _, _ string, _ team.ResourceLimits) team.Assessment {
	f.calls++
	return f.a
}

func TestComplexityAssessment(t *testing.T) {
	a := &fixedAssessor{a: team.Assessment{
		OverallScore:                   7,
		RecommendedManagers:            2,
		RecommendedEngineersPerManager: 3,
		TotalRecommendedWorkers:        6,
		RequiresIteration:              true,
		IterationStrategy:              "Task requires 12 workers but limit is 9. Will handle in 2 iterations.",
	}}
	node := ComplexityAssessment(a, "")

	assert.Equal(t, team.Delta{}, node(ctx, newState()), "no goal, no assessment")

	s := newState()
	s.ProjectGoals = "goal"
	d := node(ctx, s)
	require.NotNil(t, d.Assessment)
	assert.Equal(t, team.PhaseAssessment, d.Phase)
	assert.Contains(t, d.Messages[0], "2 manager(s) x 3 engineer(s)")
	assert.Equal(t, a.a.IterationStrategy, d.Messages[1])

	s = team.Reduce(s, d)
	assert.Equal(t, team.Delta{}, node(ctx, s))
	assert.Equal(t, 1, a.calls)
}

func TestCTO_Template(t *testing.T) {
	s := newState()
	s.ProjectGoals = "Build a chatbot"

	d := CTO(3)(ctx, s)
	require.Len(t, d.WorkQueue, 4)
	want := []struct {
		id, title string
		priority  int
	}{
		{"work_1", "Core Implementation", 3},
		{"work_2", "Integration Layer", 2},
		{"work_3", "Testing Framework", 4},
		{"work_4", "Documentation", 1},
	}
	for i, w := range want {
		item := d.WorkQueue[i]
		assert.Equal(t, w.id, item.ID)
		assert.Equal(t, w.title, item.Title)
		assert.Equal(t, w.priority, item.Priority)
		assert.Equal(t, team.StatusPending, item.Status)
		assert.Equal(t, "cto", item.CreatedBy)
		assert.Contains(t, item.Description, "Build a chatbot")
	}
	assert.Equal(t, []team.ManagerID{0, 1, 2}, d.ActiveManagers)
	assert.Equal(t, team.PhaseDelegation, d.Phase)
	require.NotNil(t, d.Registry)
	assert.Equal(t, 3, d.Registry.Next)
	assert.False(t, d.Iteration.IsIterative)

	s = team.Reduce(s, d)
	assert.Equal(t, team.Delta{}, CTO(3)(ctx, s), "planning happens once")
}

func TestCTO_SizesFromAssessment(t *testing.T) {
	s := newState()
	s.ProjectGoals = "goal"
	s.Assessment = &team.Assessment{RecommendedManagers: 1, RecommendedEngineersPerManager: 2}

	d := CTO(3)(ctx, s)
	assert.Equal(t, []team.ManagerID{0}, d.ActiveManagers)

	d = CTO(0)(ctx, s)
	assert.Equal(t, []team.ManagerID{0}, d.ActiveManagers)
}

func TestCTO_StrategistOnlyAddsMessages(t *testing.T) {
	s := newState()
	s.ProjectGoals = "goal"
	m := model.NewMockChatModel("Split along service boundaries.")

	d := CTO(2, WithModel(m))(ctx, s)
	require.Len(t, d.WorkQueue, 4)
	assert.Contains(t, d.Messages, "CTO strategic analysis: Split along service boundaries.")

	failing := &model.MockChatModel{Err: errors.New("rate limited")}
	d = CTO(2, WithModel(failing))(ctx, s)
	assert.Len(t, d.WorkQueue, 4)
	assert.Len(t, d.Messages, 1)
}

func iterativeState() team.State {
	s := newState()
	s.ProjectGoals = "goal"
	s.Limits.MaxTotalWorkers = 2
	s.Assessment = &team.Assessment{
		RecommendedManagers:            1,
		RecommendedEngineersPerManager: 1,
		RawManagers:                    2,
		RawEngineersPerManager:         2,
		RequiresIteration:              true,
	}
	return s
}

func TestCTO_PlansAndAdvancesIterations(t *testing.T) {
	cto := CTO(3)
	s := team.Reduce(iterativeState(), cto(ctx, iterativeState()))

	require.True(t, s.Iteration.IsIterative)
	assert.Equal(t, 2, s.Iteration.TotalIterations)
	assert.Equal(t, [][]string{{"work_3", "work_1"}, {"work_2", "work_4"}}, s.Iteration.Batches)
	assert.Equal(t, []team.ManagerID{0}, s.ActiveManagers)
	batchOf := map[string]int{}
	for _, w := range s.WorkQueue {
		batchOf[w.ID] = w.IterationBatch
	}
	assert.Equal(t, map[string]int{"work_1": 0, "work_2": 1, "work_3": 0, "work_4": 1}, batchOf)

	assert.False(t, CanAdvanceIteration(s), "managers have not delegated yet")

	s = team.Reduce(s, EngineeringManager(2)(ctx, s))
	assert.Equal(t, []string{"work_1", "work_3"}, assignedIDs(s), "manager claims only the current batch")

	// Settle the first batch by hand.
	for _, id := range []string{"work_3", "work_1"} {
		i := team.IndexByID(s.WorkQueue, id)
		w := s.WorkQueue[i]
		w.Status = team.StatusCompleted
		s.WorkQueue = team.RemoveByID(s.WorkQueue, id)
		s.CompletedWork = append(s.CompletedWork, w)
	}
	require.True(t, CanAdvanceIteration(s))

	d := cto(ctx, s)
	require.NotNil(t, d.Iteration)
	assert.Equal(t, 1, d.Iteration.CurrentIteration)
	assert.Equal(t, []team.ManagerID{1}, d.ActiveManagers, "fresh managers from the registry")
	assert.Contains(t, d.Messages[0], "Advancing to iteration 2/2")
	assert.Contains(t, d.Messages[1], "Iteration 0: 2 items completed")

	s = team.Reduce(s, d)
	assert.False(t, CanAdvanceIteration(s), "last batch")
	s = team.Reduce(s, EngineeringManager(2)(ctx, s))
	assert.Equal(t, []string{"work_2", "work_4"}, assignedIDs(s))
}

func TestCTO_CarriesUnclaimedItemsForward(t *testing.T) {
	cto := CTO(1)
	s := team.Reduce(iterativeState(), cto(ctx, iterativeState()))
	// Nobody claimed work_1; the current batch still settles.
	i := team.IndexByID(s.WorkQueue, "work_3")
	w := s.WorkQueue[i]
	w.Status = team.StatusCompleted
	s.WorkQueue = team.RemoveByID(s.WorkQueue, "work_3")
	s.CompletedWork = append(s.CompletedWork, w)
	s.ActiveManagers = []team.ManagerID{}

	s = team.Reduce(s, cto(ctx, s))
	assert.Equal(t, []string{"work_1", "work_2", "work_4"}, s.Iteration.Batches[1])
	assert.Equal(t, 1, s.WorkQueue[team.IndexByID(s.WorkQueue, "work_1")].IterationBatch)
}

// settleFirstBatch plans a fresh iterative run through cto, lets the
// manager claim batch 0, completes it and advances to batch 1.
func settleFirstBatch(t *testing.T, cto Func) team.State {
	t.Helper()
	s := team.Reduce(iterativeState(), cto(ctx, iterativeState()))
	require.Equal(t, 0, s.Iteration.CurrentIteration, "a fresh run starts at iteration 0")
	require.Equal(t, []string{"work_3", "work_1"}, s.Iteration.CurrentBatch())

	s = team.Reduce(s, EngineeringManager(2)(ctx, s))
	require.Equal(t, []string{"work_1", "work_3"}, assignedIDs(s))
	for _, id := range []string{"work_3", "work_1"} {
		w := s.WorkQueue[team.IndexByID(s.WorkQueue, id)]
		w.Status = team.StatusCompleted
		s.WorkQueue = team.RemoveByID(s.WorkQueue, id)
		s.CompletedWork = append(s.CompletedWork, w)
	}
	require.True(t, CanAdvanceIteration(s))
	return team.Reduce(s, cto(ctx, s))
}

func TestCTO_ReusedAcrossRuns(t *testing.T) {
	cto := CTO(3)
	for run := 0; run < 2; run++ {
		s := settleFirstBatch(t, cto)
		assert.Equal(t, 1, s.Iteration.CurrentIteration)
		require.Len(t, s.Iteration.Results, 1, "run %d", run)
		assert.Equal(t, 0, s.Iteration.Results[0].Iteration)
		assert.Equal(t, []string{"work_3", "work_1"}, s.Iteration.Results[0].CompletedWork)
	}
}

func TestCTO_IterationResultsSurviveRestore(t *testing.T) {
	s := settleFirstBatch(t, CTO(3))
	restored, err := team.DeepCopy(s)
	require.NoError(t, err)
	require.Len(t, restored.Iteration.Results, 1)

	// A new CTO, as in a resumed process, appends to the persisted records.
	restored.Iteration.TotalIterations = 3
	restored.Iteration.Batches = append(restored.Iteration.Batches, []string{"work_9"})
	restored.WorkQueue = nil
	restored.ActiveManagers = nil
	require.True(t, CanAdvanceIteration(restored))

	d := CTO(3)(ctx, restored)
	require.NotNil(t, d.Iteration)
	require.Len(t, d.Iteration.Results, 2)
	assert.Equal(t, []string{"work_3", "work_1"}, d.Iteration.Results[0].CompletedWork)
	assert.Equal(t, 1, d.Iteration.Results[1].Iteration)
	assert.Contains(t, d.Messages[1], "Completed 2 iterations")
}

func TestCTO_ReportsPlanOverIterationLimit(t *testing.T) {
	s := iterativeState()
	s.Limits.MaxIterations = 1
	d := CTO(3)(ctx, s)
	require.NotNil(t, d.Iteration)
	assert.Equal(t, 2, d.Iteration.TotalIterations, "every batch is kept")
	assert.Contains(t, d.Messages, "Iteration plan needs 2 iterations, over the limit of 1; all batches will run")
}

func assignedIDs(s team.State) []string {
	var ids []string
	for _, w := range s.WorkQueue {
		if w.Status == team.StatusAssigned {
			ids = append(ids, w.ID)
		}
	}
	return ids
}

func TestEngineeringManager_Delegation(t *testing.T) {
	s := newState()
	s.ActiveManagers = []team.ManagerID{0}
	s.WorkQueue = pending("a", "b", "c")

	d := EngineeringManager(2)(ctx, s)

	require.Len(t, d.WorkQueue, 3)
	wantAssignees := []string{"manager_0_qa_engineer", "manager_0_senior_eng_0", "manager_0_senior_eng_1"}
	for i, w := range d.WorkQueue {
		assert.Equal(t, team.StatusAssigned, w.Status)
		require.NotNil(t, w.AssignedTo)
		assert.Equal(t, wantAssignees[i], w.AssignedTo.String())
	}
	assert.Equal(t, team.KindQAEngineer, d.WorkQueue[0].AssignedKind())
	assert.Equal(t, team.KindSeniorEngineer, d.WorkQueue[2].AssignedKind())
	assert.Empty(t, d.ActiveManagers)
	assert.NotNil(t, d.ActiveManagers)
	assert.Equal(t, team.PhaseExecution, d.Phase)
	require.Contains(t, d.ActiveEngineers, team.ManagerID(0))
	assert.Len(t, d.ActiveEngineers[0].Seniors, 2)
	assert.Equal(t, team.StatusPending, s.WorkQueue[0].Status, "input untouched")
}

func TestEngineeringManager_ClaimsAtMostThreeAndRoundRobins(t *testing.T) {
	s := newState()
	s.ActiveManagers = []team.ManagerID{0, 1}
	s.WorkQueue = pending("a", "b", "c", "d", "e")

	s = team.Reduce(s, EngineeringManager(1)(ctx, s))
	assert.Equal(t, team.PhaseDelegation, s.Phase)
	assert.Equal(t, []team.ManagerID{1}, s.ActiveManagers)
	assert.Equal(t, "manager_0_senior_eng_0", s.WorkQueue[2].AssignedTo.String())
	assert.Equal(t, team.StatusPending, s.WorkQueue[3].Status)

	s = team.Reduce(s, EngineeringManager(1)(ctx, s))
	assert.Equal(t, "manager_1_qa_engineer", s.WorkQueue[3].AssignedTo.String())
	assert.Equal(t, "manager_1_senior_eng_0", s.WorkQueue[4].AssignedTo.String())
	assert.Len(t, s.ActiveEngineers, 2)
	assert.Equal(t, team.PhaseExecution, s.Phase)
}

func TestIdempotentWhenPreconditionFails(t *testing.T) {
	s := newState()
	s.WorkQueue = pending("a")
	s.ActiveManagers = []team.ManagerID{}
	s.ProjectGoals = "goal"
	s.Phase = team.PhaseExecution
	s.CompletedWork = []team.WorkItem{{ID: "done", Status: team.StatusCompleted}}

	roles := map[string]Func{
		"engineering_manager":        EngineeringManager(2),
		"senior_engineer":            SeniorEngineer(nil, LoopBounds{}),
		"qa_engineer":                QAEngineer(nil),
		"senior_engineer_aggregator": SeniorEngineerAggregator(),
		"cto":                        CTO(3),
		"capability_gap_analyzer":    CapabilityGapAnalyzer(),
	}
	for name, role := range roles {
		t.Run(name, func(t *testing.T) {
			cur := s
			for range 3 {
				d := role(ctx, cur)
				d.Phase = ""
				assert.Equal(t, team.Delta{}, d)
				cur = team.Reduce(cur, d)
			}
			assert.Equal(t, s, cur)
		})
	}
}

func TestSeniorEngineer_HandsOffToEvaluation(t *testing.T) {
	s := newState()
	s.WorkQueue = []team.WorkItem{
		assigned("qa", team.QAEngineer(0)),
		assigned("dev", team.SeniorEngineer(0, 1)),
	}

	d := SeniorEngineer(nil, LoopBounds{MaxLoops: 2, MaxTicks: 40})(ctx, s)

	assert.Equal(t, []string{"qa"}, team.IDs(d.WorkQueue), "item leaves the work queue")
	require.Len(t, d.EvaluationQueue, 1)
	w := d.EvaluationQueue[0]
	assert.Equal(t, team.StatusEvaluation, w.Status)
	assert.Equal(t, "Development completed for 'Task dev' by manager_0_senior_eng_1", w.Result)
	require.NotNil(t, w.EvaluationLoop)
	assert.Equal(t, team.StageDevelopment, w.EvaluationLoop.Stage)
	assert.Equal(t, 0, w.EvaluationLoop.LoopCount)
	assert.Equal(t, 2, w.EvaluationLoop.MaxLoops)
	assert.Equal(t, team.DefaultMaxEscalations, w.EvaluationLoop.MaxEscalations)
	assert.Equal(t, 40, w.EvaluationLoop.MaxTicks)
	assert.Equal(t, team.PhaseEvaluation, d.Phase)

	next := team.Reduce(s, d)
	require.NoError(t, team.CheckInvariants(next))
}

func TestSeniorEngineer_FailureMovesToFailedWork(t *testing.T) {
	s := newState()
	s.WorkQueue = []team.WorkItem{assigned("dev", team.SeniorEngineer(0, 0))}
	exec := ExecutorFunc(func(context.Context, team.WorkItem, team.Assignment) (string, error) {
		return "", errors.New("unauthorized: token expired")
	})

	d := SeniorEngineer(exec, LoopBounds{})(ctx, s)

	assert.Empty(t, d.WorkQueue)
	require.Len(t, d.FailedWork, 1)
	assert.Equal(t, team.StatusFailed, d.FailedWork[0].Status)
	assert.Contains(t, d.FailedWork[0].Result, "unauthorized: token expired")
	assert.Equal(t, team.PhaseReview, d.Phase)
	require.NoError(t, team.CheckInvariants(team.Reduce(s, d)))
}

func TestQAEngineer_Completes(t *testing.T) {
	s := newState()
	s.WorkQueue = []team.WorkItem{
		assigned("qa", team.QAEngineer(0)),
		assigned("dev", team.SeniorEngineer(0, 0)),
	}

	d := QAEngineer(nil)(ctx, s)

	assert.Equal(t, []string{"dev"}, team.IDs(d.WorkQueue))
	require.Len(t, d.CompletedWork, 1)
	assert.Equal(t, team.StatusCompleted, d.CompletedWork[0].Status)
	assert.Equal(t, "QA testing completed for 'Task qa' by manager_0_qa_engineer", d.CompletedWork[0].Result)
	assert.Equal(t, team.PhaseExecution, d.Phase, "senior work still assigned")
}

func TestLLMExecutor(t *testing.T) {
	tech := model.NewMockChatModel("Implemented with a REST handler.")
	x := NewLLMExecutor(model.Selector{Technical: tech})

	out, err := x.Execute(ctx, assigned("dev", team.SeniorEngineer(0, 0)), team.SeniorEngineer(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "Development completed by manager_0_senior_eng_0: Implemented with a REST handler.", out)

	qa := assigned("qa", team.QAEngineer(0))
	qa.Result = "Integrated Development Package:"
	_, err = x.Execute(ctx, qa, team.QAEngineer(0))
	require.NoError(t, err)
	assert.Contains(t, tech.Calls[1][1].Content, "Integrated Development Package:")

	_, err = NewLLMExecutor(model.Selector{}).Execute(ctx, qa, team.QAEngineer(0))
	assert.Error(t, err)

	empty := NewLLMExecutor(model.Selector{NonTechnical: model.NewMockChatModel()})
	_, err = empty.Execute(ctx, qa, team.QAEngineer(0))
	assert.ErrorIs(t, err, model.ErrEmptyResponse)
}

func heldItem(id string, a team.Assignment, priority int) team.WorkItem {
	w := team.NewWorkItem(id, "Task "+id, "do "+id, priority, "cto")
	w.Status = team.StatusEvaluation
	w.AssignedTo = &a
	w.Result = "Development completed for 'Task " + id + "'"
	l := team.NewEvaluationLoop()
	l.Stage = team.StageCompleted
	w.EvaluationLoop = l
	return w
}

func TestSeniorEngineerAggregator(t *testing.T) {
	s := newState()
	other := heldItem("b", team.SeniorEngineer(0, 1), 4)
	other.EvaluationLoop.Stage = team.StagePeerReview
	s.EvaluationQueue = []team.WorkItem{
		heldItem("a", team.SeniorEngineer(0, 0), 3),
		other,
		heldItem("c", team.SeniorEngineer(0, 1), 2),
	}

	d := SeniorEngineerAggregator()(ctx, s)

	assert.Equal(t, []string{"b"}, team.IDs(d.EvaluationQueue), "only completed senior work is joined")
	require.Len(t, d.WorkQueue, 1)
	pkg := d.WorkQueue[0]
	assert.Equal(t, "integrated_output_a", pkg.ID)
	assert.Equal(t, "Integrated Development Package", pkg.Title)
	assert.Equal(t, 3, pkg.Priority)
	assert.Equal(t, team.StatusAssigned, pkg.Status)
	assert.Equal(t, AggregatorName, pkg.CreatedBy)
	assert.Equal(t, "manager_0_qa_engineer", pkg.AssignedTo.String())
	assert.Equal(t, "Combined deliverable from 2 senior engineers working in parallel", pkg.Description)
	assert.Equal(t, "Integrated Development Package:\n- Task a: Development completed for 'Task a'\n- Task c: Development completed for 'Task c'", pkg.Result)

	next := team.Reduce(s, d)
	require.NoError(t, team.CheckInvariants(next))
}

func TestSeniorEngineerAggregator_NeedsTwo(t *testing.T) {
	s := newState()
	s.EvaluationQueue = []team.WorkItem{heldItem("a", team.SeniorEngineer(0, 0), 3)}
	assert.Equal(t, team.Delta{Phase: team.PhaseExecution}, SeniorEngineerAggregator()(ctx, s))
}

func TestReview(t *testing.T) {
	s := newState()
	reg := team.NewTeamRegistry()
	s.ActiveEngineers = map[team.ManagerID]team.Team{
		1: reg.FormTeam(1, 1),
		0: reg.FormTeam(0, 2),
	}
	s.CompletedWork = []team.WorkItem{{ID: "a", Status: team.StatusCompleted}, {ID: "b", Status: team.StatusCompleted}}

	d := Review()(ctx, s)
	assert.Equal(t, team.PhaseCompleted, d.Phase)
	assert.Contains(t, d.ReviewSummary, "Work items completed: 2")
	assert.Contains(t, d.ReviewSummary, "  manager_0: QA engineer manager_0_qa_engineer, 2 senior engineer(s)\n  manager_1:")
	assert.Contains(t, d.ReviewSummary, "QA engineers: 2\nSenior engineers: 3\nTotal engineers: 5")

	d = Review(WithModel(model.NewMockChatModel("Solid delivery.")))(ctx, s)
	assert.Contains(t, d.ReviewSummary, "Analysis:\nSolid delivery.")
	assert.Contains(t, d.Messages, "Final review: Solid delivery.")
}

func TestCapabilityGapAnalyzer(t *testing.T) {
	s := newState()
	failed := assigned("dev", team.SeniorEngineer(0, 0))
	failed.Status = team.StatusFailed
	failed.Description = "Deploy to production"
	failed.Result = "Execution failed: Command not found: kubectl"
	odd := team.NewWorkItem("odd", "Odd", "x", 1, "cto")
	odd.Status = team.StatusFailed
	odd.Result = "failed for unknown reasons"
	quiet := team.NewWorkItem("quiet", "Quiet", "x", 1, "cto")
	quiet.Status = team.StatusFailed
	quiet.Result = "rejected by reviewer"
	s.FailedWork = []team.WorkItem{failed, odd, quiet}

	analyzer := CapabilityGapAnalyzer()
	d := analyzer(ctx, s)

	require.Len(t, d.AssistanceRequests, 2)
	tools := d.AssistanceRequests[0]
	assert.Equal(t, "dev", tools.WorkItemID)
	assert.Equal(t, "manager_0_senior_eng_0", tools.EngineerID)
	assert.Equal(t, team.RequestTools, tools.Type)
	assert.Equal(t, team.UrgencyHigh, tools.Urgency)
	assert.Equal(t, []string{"kubectl"}, tools.RequiredCapabilities)
	assert.Equal(t, team.RequestApproval, d.AssistanceRequests[1].Type)
	assert.Equal(t, "cto", d.AssistanceRequests[1].EngineerID)
	assert.Equal(t, team.PhaseHumanAssistance, d.Phase)

	s = team.Reduce(s, d)
	assert.Empty(t, NeedsGapAnalysis(s))
	assert.Equal(t, team.Delta{}, analyzer(ctx, s), "each failure is analyzed once")
}

func TestHumanAssistanceCoordinator(t *testing.T) {
	s := newState()
	assert.Equal(t, team.Delta{Phase: team.PhaseExecution}, HumanAssistanceCoordinator()(ctx, s))

	s.AssistanceRequests = []team.AssistanceRequest{
		{ID: "r1", Title: "Need kubectl", Status: team.RequestPending, Urgency: team.UrgencyHigh, Type: team.RequestTools},
		{ID: "r2", Title: "Done", Status: team.RequestResolved},
	}
	d := HumanAssistanceCoordinator()(ctx, s)
	assert.Equal(t, team.PhaseHumanAssistance, d.Phase)
	require.Len(t, d.Messages, 2)
	assert.Equal(t, "1 assistance request(s) awaiting human response", d.Messages[0])
	assert.Contains(t, d.Messages[1], "[HIGH] Need kubectl (tools)")
}
