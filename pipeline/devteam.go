package pipeline

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/dshills/devteam/complexity"
	"github.com/dshills/devteam/emit"
	"github.com/dshills/devteam/evaluation"
	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/roles"
	"github.com/dshills/devteam/store"
	"github.com/dshills/devteam/team"
)

// Node ids of the dev-team topology.
const (
	NodeGoalSetting          = "goal_setting"
	NodeComplexityAssessment = "complexity_assessment"
	NodeCTO                  = "cto"
	NodeEngineeringManager   = "engineering_manager"
	NodeSeniorEngineer       = "senior_engineer"
	NodeQAEngineer           = "qa_engineer"
	NodeAggregator           = roles.AggregatorName
	NodeRelease              = "release_held_work"
	NodeGapAnalyzer          = "capability_gap_analyzer"
	NodeAssistance           = "human_assistance_coordinator"
	NodeReview               = "review"
)

// ladderStages are the stages with an evaluator node, in ladder order.
var ladderStages = []team.Stage{
	team.StageDevelopment,
	team.StageUnitTest,
	team.StageSelfReview,
	team.StagePeerReview,
	team.StageIntegrationTest,
	team.StageManagerReview,
	team.StageCTOReview,
	team.StageHumanEscalation,
}

// EvaluatorNode is the node id of the evaluator for stage.
func EvaluatorNode(stage team.Stage) string { return evaluation.EvaluatorName(stage) }

// Deps are the collaborators of the dev-team pipeline. Zero values fall
// back to non-interactive, LLM-free defaults.
type Deps struct {
	Goal        roles.GoalSource
	Assessor    roles.Assessor
	WorkContext string
	Executor    roles.WorkExecutor
	Reviewer    evaluation.Reviewer
	// Advisor gives the CTO and the final review an LLM analysis.
	Advisor model.ChatModel

	MaxManagers        int
	MaxSeniorEngineers int
	Loops              roles.LoopBounds
	HoldForAggregation bool

	Costs  *model.CostTracker
	Logger *zap.Logger
}

// BuildDevTeam wires the roles, evaluators and assistance nodes into an
// engine:
//
//	goal_setting -> complexity_assessment -> cto -> Dispatch
//
// Every later node routes with Dispatch, except the assistance coordinator
// which suspends while requests are pending, and review which ends the run.
// Dispatch prefers pending assistance, then evaluation work, then the next
// iteration, aggregation, delegation, engineers with assigned items and gap
// analysis. It suspends while a human decision is outstanding and goes to
// review when nothing else is left.
//
// Nil fields of deps fall back to offline behavior: a static empty goal,
// the fallback assessment, canned engineer output and canned review
// feedback. A canned run needs no model at all.
//
// Example:
//
//	e, err := pipeline.BuildDevTeam(store.NewMemStore[team.State](), emit.NewNullEmitter(), pipeline.Deps{
//		Goal:  roles.StaticGoalSource("Build a billing API"),
//		Loops: roles.LoopBounds{MaxLoops: 3, MaxEscalations: 2},
//	})
//	if err != nil {
//		return err
//	}
//	final, status, err := e.Run(ctx, "run-001", team.NewState(team.DefaultResourceLimits()))
//	if status == pipeline.StatusAwaitingHuman {
//		final, status, err = e.Resume(ctx, "run-001", map[string]team.HumanDecision{
//			"work_3": {Decision: team.DecisionApprove},
//		}, nil)
//	}
func BuildDevTeam(st store.Store[team.State], emitter emit.Emitter, deps Deps, opts ...Option) (*Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	goal := deps.Goal
	if goal == nil {
		goal = roles.StaticGoalSource("")
	}
	assessor := deps.Assessor
	if assessor == nil {
		assessor = complexity.NewAnalyzer(nil, complexity.WithLogger(logger.Named("complexity")))
	}
	exec := deps.Executor
	if exec == nil {
		exec = roles.CannedExecutor{}
	}

	roleOpts := []roles.Option{roles.WithLogger(logger.Named("roles")), roles.WithCostTracker(deps.Costs)}
	advised := append(slices.Clone(roleOpts), roles.WithModel(deps.Advisor))
	evalOpts := []evaluation.Option{
		evaluation.WithReviewer(deps.Reviewer),
		evaluation.WithLogger(logger.Named("evaluation")),
		evaluation.WithHoldForAggregation(deps.HoldForAggregation),
	}

	e := New(st, emitter, append([]Option{WithLogger(logger)}, opts...)...)
	nodes := []struct {
		id   string
		node Node
	}{
		{NodeGoalSetting, DeltaFunc(roles.GoalIntake(goal, roleOpts...))},
		{NodeComplexityAssessment, DeltaFunc(roles.ComplexityAssessment(assessor, deps.WorkContext, roleOpts...))},
		{NodeCTO, DeltaFunc(roles.CTO(deps.MaxManagers, advised...))},
		{NodeEngineeringManager, DeltaFunc(roles.EngineeringManager(deps.MaxSeniorEngineers, roleOpts...))},
		{NodeSeniorEngineer, DeltaFunc(roles.SeniorEngineer(exec, deps.Loops, roleOpts...))},
		{NodeQAEngineer, DeltaFunc(roles.QAEngineer(exec, roleOpts...))},
		{NodeAggregator, DeltaFunc(roles.SeniorEngineerAggregator(roleOpts...))},
		{NodeRelease, DeltaFunc(evaluation.Release)},
		{NodeGapAnalyzer, DeltaFunc(roles.CapabilityGapAnalyzer(roleOpts...))},
		{NodeAssistance, DeltaFunc(roles.HumanAssistanceCoordinator(roleOpts...))},
		{NodeReview, DeltaFunc(roles.Review(advised...))},
	}
	for _, stage := range ladderStages {
		var node Node
		if stage == team.StageHumanEscalation {
			node = DeltaFunc(evaluation.NewHumanEscalation(logger.Named("evaluation")).Evaluate)
		} else {
			node = DeltaFunc(evaluation.New(stage, evalOpts...).Evaluate)
		}
		nodes = append(nodes, struct {
			id   string
			node Node
		}{EvaluatorNode(stage), node})
	}

	for _, n := range nodes {
		if err := e.Add(n.id, n.node); err != nil {
			return nil, err
		}
	}
	if err := e.StartAt(NodeGoalSetting); err != nil {
		return nil, err
	}
	if err := e.Connect(NodeGoalSetting, NodeComplexityAssessment, nil); err != nil {
		return nil, err
	}
	if err := e.Connect(NodeComplexityAssessment, NodeCTO, nil); err != nil {
		return nil, err
	}
	if err := e.Connect(NodeReview, End, nil); err != nil {
		return nil, err
	}
	if err := e.Branch(NodeAssistance, awaitAssistance); err != nil {
		return nil, err
	}
	for _, n := range nodes {
		switch n.id {
		case NodeGoalSetting, NodeComplexityAssessment, NodeReview:
			continue
		}
		if err := e.Branch(n.id, Dispatch); err != nil {
			return nil, fmt.Errorf("route %s: %w", n.id, err)
		}
	}
	return e, nil
}

// awaitAssistance keeps the run suspended while assistance requests are
// pending.
func awaitAssistance(s team.State) string {
	if s.HasPendingAssistance() {
		return Suspend
	}
	return ""
}

// Dispatch picks the next node once the CTO has planned the work. Earlier
// entries take priority:
//
//  1. pending assistance requests go to the coordinator;
//  2. evaluation work goes to the evaluator of the first item's stage;
//  3. a settled iteration batch goes back to the CTO;
//  4. two or more held items go to the aggregator, a lone one is released;
//  5. waiting managers delegate, then senior and QA engineers execute;
//  6. unanalysed failures go to the capability gap analyzer;
//  7. items awaiting a human decision suspend the run;
//  8. otherwise the review closes the run.
func Dispatch(s team.State) string {
	if s.HasPendingAssistance() {
		return NodeAssistance
	}
	if node := evaluationWork(s); node != "" {
		return node
	}
	switch {
	case roles.CanAdvanceIteration(s):
		return NodeCTO
	case len(evaluation.Held(s)) >= 2:
		return NodeAggregator
	case evaluation.Releasable(s):
		return NodeRelease
	case roles.CanDelegate(s):
		return NodeEngineeringManager
	case roles.HasAssignedWork(s, team.KindSeniorEngineer):
		return NodeSeniorEngineer
	case roles.HasAssignedWork(s, team.KindQAEngineer):
		return NodeQAEngineer
	case len(roles.NeedsGapAnalysis(s)) > 0:
		return NodeGapAnalyzer
	case len(s.AwaitingHuman) > 0 && len(evaluation.AwaitingDecision(s)) > 0:
		return Suspend
	}
	return NodeReview
}

// evaluationWork returns the evaluator for the first evaluation queue item
// that has a tick to take. Held items and items suspended without a
// decision are skipped.
func evaluationWork(s team.State) string {
	for _, w := range s.EvaluationQueue {
		if w.EvaluationLoop == nil || evaluation.IsHeld(w) || w.Stage().Terminal() {
			continue
		}
		if w.Stage() == team.StageHumanEscalation {
			_, decided := s.PendingDecisions[w.ID]
			if !decided && slices.Contains(s.AwaitingHuman, w.ID) {
				continue
			}
		}
		return EvaluatorNode(w.Stage())
	}
	return ""
}
