// Package pipeline schedules the dev-team roles and evaluators over a
// shared team.State.
//
// An Engine holds named nodes and the routing between them. Each step runs
// one node, merges its delta, persists the snapshot along with the chosen
// next node, and emits an event. A run ends when routing yields End, and
// suspends when it yields Suspend; Resume continues a suspended run once
// human decisions or assistance resolutions are supplied.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/devteam/assist"
	"github.com/dshills/devteam/emit"
	"github.com/dshills/devteam/evaluation"
	"github.com/dshills/devteam/store"
	"github.com/dshills/devteam/team"
)

// Status is how a Run or Resume call ended.
type Status string

const (
	StatusCompleted     Status = "completed"
	StatusAwaitingHuman Status = "awaiting_human"
	StatusFailed        Status = "failed"
)

// Engine runs the dev team pipeline graph over team.State.
//
// The Engine:
//   - Holds the graph topology (nodes, routers and edges)
//   - Runs one node per step, merging its delta with team.Reduce
//   - Persists a StepRecord after every step via the store
//   - Emits node and run events via the emitter
//   - Enforces the step budget, the run wall-clock budget and node timeouts
//   - Suspends a run for human input and resumes it with decisions
//   - Saves and restores named checkpoints
//
// After a node runs, the next node is its explicit Next if set, otherwise
// the first router with an opinion, otherwise the first matching edge. A
// run ends on End and suspends on Suspend. With no route it fails with
// NO_ROUTE.
//
// Only one Run or Resume executes on an Engine at a time.
//
// Example:
//
//	st := store.NewMemStore[team.State]()
//	e := pipeline.New(st, emit.NewLogEmitter(logger), pipeline.WithMaxSteps(100))
//	_ = e.Add("cto", pipeline.DeltaFunc(roles.CTO(2)))
//	_ = e.Add("review", pipeline.DeltaFunc(roles.Review()))
//	_ = e.StartAt("cto")
//	_ = e.Connect("cto", "review", nil)
//	_ = e.Branch("review", func(team.State) string { return pipeline.End })
//
//	final, status, err := e.Run(ctx, "run-001", state)
type Engine struct {
	mu        sync.RWMutex
	nodes     map[string]Node
	routers   map[string][]Router
	edges     []Edge
	startNode string

	// runMu makes the engine the single writer of a run's state.
	runMu sync.Mutex

	store   store.Store[team.State]
	emitter emit.Emitter
	opts    options
}

// New returns an engine persisting to st and reporting to emitter. A nil
// emitter drops events.
func New(st store.Store[team.State], emitter emit.Emitter, opts ...Option) *Engine {
	o := options{maxSteps: DefaultMaxSteps, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Engine{
		nodes:   make(map[string]Node),
		routers: make(map[string][]Router),
		store:   st,
		emitter: emitter,
		opts:    o,
	}
}

// Add registers node under nodeID.
func (e *Engine) Add(nodeID string, node Node) error {
	if nodeID == "" || nodeID == End || nodeID == Suspend {
		return &EngineError{Code: CodeNodeNotFound, Message: fmt.Sprintf("invalid node id %q", nodeID)}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[nodeID]; ok {
		return &EngineError{Code: CodeDuplicateNode, Message: "duplicate node: " + nodeID, NodeID: nodeID}
	}
	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the node a fresh run begins with.
func (e *Engine) StartAt(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[nodeID]; !ok {
		return &EngineError{Code: CodeNodeNotFound, Message: "start node does not exist: " + nodeID, NodeID: nodeID}
	}
	e.startNode = nodeID
	return nil
}

// Connect adds an edge from one node to another, or to End. Edges are
// tried in the order they were added, after any routers of from.
func (e *Engine) Connect(from, to string, when Predicate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[from]; !ok {
		return &EngineError{Code: CodeNodeNotFound, Message: "edge source does not exist: " + from, NodeID: from}
	}
	if _, ok := e.nodes[to]; !ok && to != End && to != Suspend {
		return &EngineError{Code: CodeNodeNotFound, Message: "edge target does not exist: " + to, NodeID: to}
	}
	e.edges = append(e.edges, Edge{From: from, To: to, When: when})
	return nil
}

// Branch attaches a router to from. Routers run before edges.
func (e *Engine) Branch(from string, r Router) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[from]; !ok {
		return &EngineError{Code: CodeNodeNotFound, Message: "branch source does not exist: " + from, NodeID: from}
	}
	e.routers[from] = append(e.routers[from], r)
	return nil
}

// Run executes runID from the start node with initial state. It returns
// the last state reached even when it also returns an error.
func (e *Engine) Run(ctx context.Context, runID string, initial team.State) (team.State, Status, error) {
	if e.store == nil {
		return initial, StatusFailed, &EngineError{Code: CodeMissingStore, Message: "store is required"}
	}
	e.mu.RLock()
	start := e.startNode
	e.mu.RUnlock()
	if start == "" {
		return initial, StatusFailed, &EngineError{Code: CodeNoStartNode, Message: "start node not set (call StartAt before Run)"}
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.opts.logger.Info("run started", zap.String("run_id", runID), zap.String("start", start))
	return e.loop(ctx, runID, initial, start, 0)
}

// Resume continues runID from its latest persisted step. Decisions are
// recorded for items suspended at human escalation and resolutions are
// applied to assistance requests by id. The router of the node that
// suspended the run is then consulted again on the updated state.
//
// A run whose latest step routed to a node (for example after a crash or a
// restored checkpoint) continues at that node. A finished run returns a
// NOT_SUSPENDED error.
func (e *Engine) Resume(ctx context.Context, runID string, decisions map[string]team.HumanDecision, resolutions map[string]assist.Resolution) (team.State, Status, error) {
	if e.store == nil {
		return team.State{}, StatusFailed, &EngineError{Code: CodeMissingStore, Message: "store is required"}
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	rec, err := e.store.LoadLatest(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return team.State{}, StatusFailed, &EngineError{Code: CodeNotSuspended, Message: "no persisted run " + runID, Cause: err}
	}
	if err != nil {
		return team.State{}, StatusFailed, &EngineError{Code: CodeStoreError, Message: "failed to load run", Cause: err}
	}
	if rec.Next == End {
		return rec.State, StatusCompleted, &EngineError{Code: CodeNotSuspended, Message: "run " + runID + " already completed"}
	}

	state := rec.State
	if len(decisions) > 0 {
		delta, err := evaluation.RecordDecisions(state, decisions)
		if err != nil {
			return state, StatusAwaitingHuman, err
		}
		state = team.Reduce(state, delta)
	}
	for _, id := range slices.Sorted(maps.Keys(resolutions)) {
		reqs, err := assist.ResolveByID(state.AssistanceRequests, id, resolutions[id])
		if err != nil {
			return rec.State, StatusAwaitingHuman, fmt.Errorf("resolve %s: %w", id, err)
		}
		state.AssistanceRequests = reqs
		state.Messages = append(slices.Clone(state.Messages), fmt.Sprintf("assistance request %s resolved", id))
	}

	next := rec.Next
	if next == Suspend {
		next = e.route(rec.NodeID, Next{}, state)
	}
	step := rec.Step + 1
	if err := e.store.SaveStep(ctx, runID, store.StepRecord[team.State]{Step: step, NodeID: rec.NodeID, Next: next, State: state}); err != nil {
		return state, StatusFailed, &EngineError{Code: CodeStoreError, Message: "failed to save resume step", Cause: err}
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: rec.NodeID, Msg: emit.MsgResumed, Meta: map[string]any{
		"next":        next,
		"decisions":   len(decisions),
		"resolutions": len(resolutions),
	}})
	e.opts.logger.Info("run resumed", zap.String("run_id", runID), zap.String("next", next))

	switch next {
	case "":
		return state, StatusFailed, &EngineError{Code: CodeNoRoute, Message: "no valid route from node: " + rec.NodeID, NodeID: rec.NodeID}
	case End, Suspend:
		return e.finish(runID, step, rec.NodeID, next, state)
	}
	return e.loop(ctx, runID, state, next, step)
}

// SaveCheckpoint copies the latest step of runID under cpID.
func (e *Engine) SaveCheckpoint(ctx context.Context, runID, cpID string) error {
	rec, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		return &EngineError{Code: CodeStoreError, Message: "failed to load run " + runID, Cause: err}
	}
	if err := e.store.SaveCheckpoint(ctx, store.Checkpoint[team.State]{ID: cpID, RunID: runID, Record: rec}); err != nil {
		return &EngineError{Code: CodeStoreError, Message: "failed to save checkpoint " + cpID, Cause: err}
	}
	return nil
}

// RestoreCheckpoint makes checkpoint cpID the latest step of runID, which
// may be a new run id. Resume then continues from it.
func (e *Engine) RestoreCheckpoint(ctx context.Context, cpID, runID string) error {
	cp, err := e.store.LoadCheckpoint(ctx, cpID)
	if err != nil {
		return &EngineError{Code: CodeStoreError, Message: "failed to load checkpoint " + cpID, Cause: err}
	}
	rec := cp.Record
	if latest, err := e.store.LoadLatest(ctx, runID); err == nil && latest.Step >= rec.Step {
		rec.Step = latest.Step + 1
	}
	if err := e.store.SaveStep(ctx, runID, rec); err != nil {
		return &EngineError{Code: CodeStoreError, Message: "failed to restore checkpoint " + cpID, Cause: err}
	}
	return nil
}

func (e *Engine) loop(ctx context.Context, runID string, state team.State, current string, step int) (team.State, Status, error) {
	started := time.Now()
	if e.opts.wallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.wallClock)
		defer cancel()
	}

	for executed := 1; ; executed++ {
		step++

		if e.opts.maxSteps > 0 && executed > e.opts.maxSteps {
			return e.fail(runID, step, current, state, &EngineError{
				Code:    CodeMaxStepsExceeded,
				Message: fmt.Sprintf("run exceeded %d steps", e.opts.maxSteps),
				NodeID:  current,
			})
		}
		if e.opts.wallClock > 0 && time.Since(started) > e.opts.wallClock {
			return e.fail(runID, step, current, state, &EngineError{
				Code:    CodeBudgetExceeded,
				Message: fmt.Sprintf("run exceeded wall-clock budget of %v", e.opts.wallClock),
				NodeID:  current,
			})
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && e.opts.wallClock > 0 {
				err = &EngineError{Code: CodeBudgetExceeded, Message: "run exceeded wall-clock budget", NodeID: current, Cause: err}
			}
			return e.fail(runID, step, current, state, err)
		}

		e.mu.RLock()
		node, ok := e.nodes[current]
		e.mu.RUnlock()
		if !ok {
			return e.fail(runID, step, current, state, &EngineError{Code: CodeNodeNotFound, Message: "node not found during execution: " + current, NodeID: current})
		}

		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: emit.MsgNodeStart})
		begin := time.Now()
		result, err := e.execute(ctx, current, node, state)
		latency := time.Since(begin)
		if err == nil && result.Err != nil {
			err = &EngineError{Code: CodeNodeFailed, Message: "node returned an error", NodeID: current, Cause: result.Err}
		}
		if err != nil {
			status := "error"
			var ee *EngineError
			if errors.As(err, &ee) && ee.Code == CodeNodeTimeout {
				status = "timeout"
			}
			e.opts.metrics.observeStep(current, status, latency)
			return e.fail(runID, step, current, state, err)
		}

		before := escalatedIDs(state)
		state = team.Reduce(state, result.Delta)
		if e.opts.checkInvariant {
			if err := team.CheckInvariants(state); err != nil {
				return e.fail(runID, step, current, state, &EngineError{Code: CodeInvariantViolation, Message: "state invariant violated", NodeID: current, Cause: err})
			}
		}

		next := e.route(current, result.Route, state)
		if err := e.store.SaveStep(ctx, runID, store.StepRecord[team.State]{Step: step, NodeID: current, Next: next, State: state}); err != nil {
			return e.fail(runID, step, current, state, &EngineError{Code: CodeStoreError, Message: "failed to save step", NodeID: current, Cause: err})
		}

		e.opts.metrics.observeStep(current, "success", latency)
		e.opts.metrics.observeState(state)
		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: emit.MsgNodeEnd, Meta: map[string]any{
			"latency_ms": latency.Milliseconds(),
			"phase":      string(state.Phase),
			"next":       next,
		}})
		if fresh := newlyEscalated(before, state); len(fresh) > 0 {
			e.opts.metrics.escalated(len(fresh))
			e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: emit.MsgItemEscalated, Meta: map[string]any{"work_items": fresh}})
		}

		switch next {
		case "":
			return e.fail(runID, step, current, state, &EngineError{Code: CodeNoRoute, Message: "no valid route from node: " + current, NodeID: current})
		case End, Suspend:
			return e.finish(runID, step, current, next, state)
		}
		current = next
	}
}

// execute runs node under its timeout.
func (e *Engine) execute(ctx context.Context, nodeID string, node Node, s team.State) (NodeResult, error) {
	timeout := e.opts.timeoutFor(nodeID)
	if timeout <= 0 {
		return node.Run(ctx, s), nil
	}
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result := node.Run(nodeCtx, s)
	if errors.Is(nodeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return result, &EngineError{Code: CodeNodeTimeout, Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout), NodeID: nodeID}
	}
	return result, nil
}

func (e *Engine) finish(runID string, step int, nodeID, next string, s team.State) (team.State, Status, error) {
	if next == Suspend {
		e.opts.metrics.finished(string(StatusAwaitingHuman))
		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgSuspended, Meta: map[string]any{
			"awaiting_human":     slices.Clone(s.AwaitingHuman),
			"pending_assistance": len(assist.Pending(s.AssistanceRequests)),
		}})
		e.opts.logger.Info("run suspended for human input",
			zap.String("run_id", runID),
			zap.Strings("awaiting_human", s.AwaitingHuman),
		)
		return s, StatusAwaitingHuman, nil
	}
	e.opts.metrics.finished(string(StatusCompleted))
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgRunCompleted, Meta: map[string]any{
		"completed": len(s.CompletedWork),
		"failed":    len(s.FailedWork),
	}})
	e.opts.logger.Info("run completed", zap.String("run_id", runID), zap.Int("steps", step))
	return s, StatusCompleted, nil
}

func (e *Engine) fail(runID string, step int, nodeID string, s team.State, err error) (team.State, Status, error) {
	e.opts.metrics.finished(string(StatusFailed))
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgRunFailed, Meta: map[string]any{"error": err.Error()}})
	e.opts.logger.Error("run failed", zap.String("run_id", runID), zap.String("node_id", nodeID), zap.Error(err))
	return s, StatusFailed, err
}

func escalatedIDs(s team.State) map[string]bool {
	ids := map[string]bool{}
	for _, w := range s.EvaluationQueue {
		if w.Stage() == team.StageHumanEscalation {
			ids[w.ID] = true
		}
	}
	return ids
}

func newlyEscalated(before map[string]bool, s team.State) []string {
	var fresh []string
	for _, w := range s.EvaluationQueue {
		if w.Stage() == team.StageHumanEscalation && !before[w.ID] {
			fresh = append(fresh, w.ID)
		}
	}
	return fresh
}
