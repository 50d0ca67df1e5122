package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/devteam/emit"
	"github.com/dshills/devteam/store"
	"github.com/dshills/devteam/team"
)

var ctx = context.Background()

func message(text string) Node {
	return DeltaFunc(func(context.Context, team.State) team.Delta {
		return team.Delta{Messages: []string{text}}
	})
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *store.MemStore[team.State], *emit.BufferedEmitter) {
	t.Helper()
	st := store.NewMemStore[team.State]()
	em := emit.NewBufferedEmitter()
	return New(st, em, opts...), st, em
}

func codeOf(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

func TestEngine_Configuration(t *testing.T) {
	e, _, _ := newEngine(t)
	require.NoError(t, e.Add("a", message("a")))

	assert.Equal(t, CodeDuplicateNode, codeOf(e.Add("a", message("again"))))
	assert.Equal(t, CodeNodeNotFound, codeOf(e.Add(End, message("x"))))
	assert.Equal(t, CodeNodeNotFound, codeOf(e.StartAt("missing")))
	assert.Equal(t, CodeNodeNotFound, codeOf(e.Connect("a", "missing", nil)))
	assert.Equal(t, CodeNodeNotFound, codeOf(e.Connect("missing", "a", nil)))
	assert.Equal(t, CodeNodeNotFound, codeOf(e.Branch("missing", Dispatch)))
	assert.NoError(t, e.Connect("a", End, nil))

	_, status, err := e.Run(ctx, "r", team.State{})
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, CodeNoStartNode, codeOf(err))

	_, _, err = New(nil, nil).Run(ctx, "r", team.State{})
	assert.Equal(t, CodeMissingStore, codeOf(err))
}

func TestEngine_EdgesAndRoutersInOrder(t *testing.T) {
	e, st, em := newEngine(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, e.Add(id, message(id)))
	}
	require.NoError(t, e.StartAt("a"))
	// The router has no opinion until b ran, so a's edges decide first.
	require.NoError(t, e.Branch("a", func(s team.State) string {
		if len(s.Messages) > 1 {
			return End
		}
		return ""
	}))
	require.NoError(t, e.Connect("a", "c", func(s team.State) bool { return false }))
	require.NoError(t, e.Connect("a", "b", nil))
	require.NoError(t, e.Connect("b", "a", nil))

	final, status, err := e.Run(ctx, "run", team.State{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, []string{"a", "b", "a"}, final.Messages)

	rec, err := st.LoadLatest(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Step)
	assert.Equal(t, End, rec.Next)

	ends := em.Filter("run", emit.HistoryFilter{Msg: emit.MsgNodeEnd})
	require.Len(t, ends, 3)
	assert.Equal(t, "b", ends[0].Meta["next"])
	assert.Len(t, em.Filter("run", emit.HistoryFilter{Msg: emit.MsgRunCompleted}), 1)
}

func TestEngine_ExplicitRouteWins(t *testing.T) {
	e, _, _ := newEngine(t)
	require.NoError(t, e.Add("a", NodeFunc(func(context.Context, team.State) NodeResult {
		return NodeResult{Delta: team.Delta{Messages: []string{"a"}}, Route: Goto("b")}
	})))
	require.NoError(t, e.Add("b", NodeFunc(func(context.Context, team.State) NodeResult {
		return NodeResult{Route: Stop()}
	})))
	require.NoError(t, e.Add("never", message("never")))
	require.NoError(t, e.StartAt("a"))
	require.NoError(t, e.Connect("a", "never", nil))

	final, status, err := e.Run(ctx, "r", team.State{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, []string{"a"}, final.Messages)
}

func TestEngine_NoRoute(t *testing.T) {
	e, _, em := newEngine(t)
	require.NoError(t, e.Add("a", message("a")))
	require.NoError(t, e.StartAt("a"))

	final, status, err := e.Run(ctx, "r", team.State{})
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, CodeNoRoute, codeOf(err))
	assert.True(t, errors.Is(err, &EngineError{Code: CodeNoRoute}))
	assert.Equal(t, []string{"a"}, final.Messages)

	failed := em.Filter("r", emit.HistoryFilter{Msg: emit.MsgRunFailed})
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Err(), CodeNoRoute)
}

func TestEngine_MaxSteps(t *testing.T) {
	e, _, _ := newEngine(t, WithMaxSteps(5))
	require.NoError(t, e.Add("loop", message("tick")))
	require.NoError(t, e.StartAt("loop"))
	require.NoError(t, e.Connect("loop", "loop", nil))

	final, _, err := e.Run(ctx, "r", team.State{})
	assert.Equal(t, CodeMaxStepsExceeded, codeOf(err))
	assert.Len(t, final.Messages, 5)
}

func TestEngine_NodeTimeout(t *testing.T) {
	e, _, _ := newEngine(t, WithDefaultNodeTimeout(time.Hour), WithNodeTimeout("slow", 10*time.Millisecond))
	require.NoError(t, e.Add("slow", DeltaFunc(func(ctx context.Context, _ team.State) team.Delta {
		<-ctx.Done()
		return team.Delta{Messages: []string{"late"}}
	})))
	require.NoError(t, e.StartAt("slow"))
	require.NoError(t, e.Connect("slow", End, nil))

	final, _, err := e.Run(ctx, "r", team.State{})
	assert.Equal(t, CodeNodeTimeout, codeOf(err))
	assert.Empty(t, final.Messages)
}

func TestEngine_WallClockBudget(t *testing.T) {
	e, _, _ := newEngine(t, WithRunWallClockBudget(20*time.Millisecond), WithMaxSteps(0))
	require.NoError(t, e.Add("loop", DeltaFunc(func(context.Context, team.State) team.Delta {
		time.Sleep(5 * time.Millisecond)
		return team.Delta{}
	})))
	require.NoError(t, e.StartAt("loop"))
	require.NoError(t, e.Connect("loop", "loop", nil))

	_, _, err := e.Run(ctx, "r", team.State{})
	assert.Equal(t, CodeBudgetExceeded, codeOf(err))
}

func TestEngine_NodeErrorAndCancellation(t *testing.T) {
	boom := errors.New("boom")
	e, _, _ := newEngine(t)
	require.NoError(t, e.Add("a", NodeFunc(func(context.Context, team.State) NodeResult { return NodeResult{Err: boom} })))
	require.NoError(t, e.StartAt("a"))

	_, _, err := e.Run(ctx, "r", team.State{})
	assert.Equal(t, CodeNodeFailed, codeOf(err))
	assert.ErrorIs(t, err, boom)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = e.Run(cancelled, "r2", team.State{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_InvariantChecks(t *testing.T) {
	bad := DeltaFunc(func(context.Context, team.State) team.Delta {
		item := team.NewWorkItem("w", "t", "d", 1, "cto")
		item.Status = team.StatusCompleted
		return team.Delta{WorkQueue: []team.WorkItem{item}}
	})

	e, _, _ := newEngine(t, WithInvariantChecks(true))
	require.NoError(t, e.Add("bad", bad))
	require.NoError(t, e.StartAt("bad"))
	require.NoError(t, e.Connect("bad", End, nil))
	_, _, err := e.Run(ctx, "r", team.NewState(team.DefaultResourceLimits()))
	assert.Equal(t, CodeInvariantViolation, codeOf(err))

	unchecked, _, _ := newEngine(t)
	require.NoError(t, unchecked.Add("bad", bad))
	require.NoError(t, unchecked.StartAt("bad"))
	require.NoError(t, unchecked.Connect("bad", End, nil))
	_, _, err = unchecked.Run(ctx, "r", team.NewState(team.DefaultResourceLimits()))
	assert.NoError(t, err)
}

type failingStore struct{ store.Store[team.State] }

func (failingStore) SaveStep(context.Context, string, store.StepRecord[team.State]) error {
	return errors.New("disk full")
}

func TestEngine_StoreError(t *testing.T) {
	e := New(failingStore{store.NewMemStore[team.State]()}, nil)
	require.NoError(t, e.Add("a", message("a")))
	require.NoError(t, e.StartAt("a"))
	require.NoError(t, e.Connect("a", End, nil))

	_, _, err := e.Run(ctx, "r", team.State{})
	assert.Equal(t, CodeStoreError, codeOf(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestEngine_SuspendAndResume(t *testing.T) {
	e, _, em := newEngine(t)
	require.NoError(t, e.Add("wait", message("waiting")))
	require.NoError(t, e.Add("after", message("after")))
	require.NoError(t, e.StartAt("wait"))
	require.NoError(t, e.Branch("wait", func(s team.State) string {
		if s.PendingDecisions["x"].Decision == "" {
			return Suspend
		}
		return "after"
	}))
	require.NoError(t, e.Connect("after", End, nil))

	_, status, err := e.Run(ctx, "r", team.State{})
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingHuman, status)
	assert.Len(t, em.Filter("r", emit.HistoryFilter{Msg: emit.MsgSuspended}), 1)

	// Nothing changed, so the run suspends again.
	_, status, err = e.Resume(ctx, "r", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingHuman, status)

	_, _, err = e.Resume(ctx, "missing", nil, nil)
	assert.Equal(t, CodeNotSuspended, codeOf(err))
}

func TestEngine_CheckpointRestore(t *testing.T) {
	e, st, _ := newEngine(t)
	require.NoError(t, e.Add("a", message("a")))
	require.NoError(t, e.Add("b", message("b")))
	require.NoError(t, e.StartAt("a"))
	require.NoError(t, e.Connect("a", "b", nil))
	require.NoError(t, e.Connect("b", End, nil))

	_, _, err := e.Run(ctx, "r", team.State{})
	require.NoError(t, err)
	require.NoError(t, e.SaveCheckpoint(ctx, "r", "done"))

	_, status, err := e.Resume(ctx, "r", nil, nil)
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, CodeNotSuspended, codeOf(err))

	// A record that routes to a node continues there on resume.
	require.NoError(t, st.SaveCheckpoint(ctx, store.Checkpoint[team.State]{
		ID: "mid", RunID: "r",
		Record: store.StepRecord[team.State]{Step: 1, NodeID: "a", Next: "b", State: team.State{Messages: []string{"a"}}},
	}))
	require.NoError(t, e.RestoreCheckpoint(ctx, "mid", "fork"))
	final, status, err := e.Resume(ctx, "fork", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, []string{"a", "b"}, final.Messages)

	assert.Equal(t, CodeStoreError, codeOf(e.RestoreCheckpoint(ctx, "nope", "x")))
	assert.Equal(t, CodeStoreError, codeOf(e.SaveCheckpoint(ctx, "nope", "x")))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e, _, _ := newEngine(t, WithMetrics(m))
	require.NoError(t, e.Add("a", message("a")))
	require.NoError(t, e.StartAt("a"))
	require.NoError(t, e.Connect("a", End, nil))

	_, _, err := e.Run(ctx, "r", team.State{})
	require.NoError(t, err)

	expected := `
# HELP devteam_runs_total Run and resume calls by outcome
# TYPE devteam_runs_total counter
devteam_runs_total{status="completed"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(expected), "devteam_runs_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "devteam_step_latency_ms"))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.observeState(team.State{}) })
}
