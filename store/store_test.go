package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/devteam/team"
)

var ctx = context.Background()

func snapshot(goal string, items ...string) team.State {
	s := team.NewState(team.DefaultResourceLimits())
	s.ProjectGoals = goal
	for i, id := range items {
		s.WorkQueue = append(s.WorkQueue, team.NewWorkItem(id, "Item "+id, "desc", i+1, "cto"))
	}
	return s
}

// testStore runs the behaviour every backend must share.
func testStore(t *testing.T, s Store[team.State]) {
	t.Helper()

	t.Run("missing run", func(t *testing.T) {
		_, err := s.LoadLatest(ctx, "no-such-run")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("latest wins", func(t *testing.T) {
		require.NoError(t, s.SaveStep(ctx, "run-1", StepRecord[team.State]{Step: 1, NodeID: "goal_setting", Next: "cto", State: snapshot("a")}))
		require.NoError(t, s.SaveStep(ctx, "run-1", StepRecord[team.State]{Step: 3, NodeID: "engineering_manager", Next: "senior_engineer", State: snapshot("c", "work_1")}))
		require.NoError(t, s.SaveStep(ctx, "run-1", StepRecord[team.State]{Step: 2, NodeID: "cto", Next: "engineering_manager", State: snapshot("b")}))

		rec, err := s.LoadLatest(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, 3, rec.Step)
		assert.Equal(t, "engineering_manager", rec.NodeID)
		assert.Equal(t, "senior_engineer", rec.Next)
		assert.Equal(t, "c", rec.State.ProjectGoals)
		require.Len(t, rec.State.WorkQueue, 1)
		assert.Equal(t, "work_1", rec.State.WorkQueue[0].ID)
	})

	t.Run("same step replaces", func(t *testing.T) {
		require.NoError(t, s.SaveStep(ctx, "run-2", StepRecord[team.State]{Step: 1, NodeID: "a", State: snapshot("first")}))
		require.NoError(t, s.SaveStep(ctx, "run-2", StepRecord[team.State]{Step: 1, NodeID: "b", State: snapshot("second")}))
		rec, err := s.LoadLatest(ctx, "run-2")
		require.NoError(t, err)
		assert.Equal(t, "b", rec.NodeID)
		assert.Equal(t, "second", rec.State.ProjectGoals)
	})

	t.Run("runs are isolated", func(t *testing.T) {
		require.NoError(t, s.SaveStep(ctx, "run-3", StepRecord[team.State]{Step: 9, NodeID: "x", State: snapshot("other")}))
		rec, err := s.LoadLatest(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, 3, rec.Step)
	})

	t.Run("checkpoints", func(t *testing.T) {
		_, err := s.LoadCheckpoint(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		cp := Checkpoint[team.State]{ID: "before-review", RunID: "run-1", Record: StepRecord[team.State]{Step: 4, NodeID: "qa_engineer", Next: "review", State: snapshot("cp", "work_2")}}
		require.NoError(t, s.SaveCheckpoint(ctx, cp))
		cp.Record.Step = 5
		require.NoError(t, s.SaveCheckpoint(ctx, cp))

		got, err := s.LoadCheckpoint(ctx, "before-review")
		require.NoError(t, err)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, 5, got.Record.Step)
		assert.Equal(t, "review", got.Record.Next)
		assert.Equal(t, "cp", got.Record.State.ProjectGoals)
	})
}

func TestMemStore(t *testing.T) {
	s := NewMemStore[team.State]()
	testStore(t, s)

	steps, err := s.Steps("run-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"goal_setting", "cto", "engineering_manager"},
		[]string{steps[0].NodeID, steps[1].NodeID, steps[2].NodeID})
}

func TestMemStoreDoesNotAlias(t *testing.T) {
	s := NewMemStore[team.State]()
	st := snapshot("goal", "work_1")
	require.NoError(t, s.SaveStep(ctx, "r", StepRecord[team.State]{Step: 1, State: st}))
	st.WorkQueue[0].Title = "mutated"

	rec, err := s.LoadLatest(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "Item work_1", rec.State.WorkQueue[0].Title)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore[team.State](":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	testStore(t, s)
}

func TestSQLiteStoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devteam.db")
	s, err := NewSQLiteStore[team.State](path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.SaveStep(ctx, "r", StepRecord[team.State]{Step: 1, NodeID: "cto", State: snapshot("persisted")}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.LoadLatest(ctx, "r")
	assert.ErrorIs(t, err, ErrClosed)

	reopened, err := NewSQLiteStore[team.State](path)
	require.NoError(t, err)
	defer reopened.Close()
	rec, err := reopened.LoadLatest(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "persisted", rec.State.ProjectGoals)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := NewRedisStore[team.State](ctx, RedisConfig{Addr: mr.Addr(), TTL: time.Hour})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	testStore(t, s)
	assert.True(t, mr.Exists("devteam:run:run-1:steps"))
	assert.Equal(t, time.Hour, mr.TTL("devteam:run:run-1:index"))
}

func TestRedisStoreUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisStore[team.State](ctx, RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL tests: TEST_MYSQL_DSN not set")
	}
	s, err := NewMySQLStore[team.State](ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	_, _ = s.db.ExecContext(ctx, "DELETE FROM devteam_steps")
	_, _ = s.db.ExecContext(ctx, "DELETE FROM devteam_checkpoints")
	testStore(t, s)
	assert.GreaterOrEqual(t, s.Stats().OpenConnections, 1)
}
