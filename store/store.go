// Package store persists pipeline snapshots so that a run can be inspected
// after the fact and resumed after it suspends for human input.
//
// Every backend stores one StepRecord per executed node, keyed by run id and
// step number, plus named checkpoints. State is serialized as JSON.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a run or checkpoint does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("store is closed")

// StepRecord is the snapshot written after a node executes.
type StepRecord[S any] struct {
	Step   int    `json:"step"`
	NodeID string `json:"node_id"`
	// Next is the node the router chose after NodeID, or one of the
	// pipeline's end/suspend markers.
	Next  string `json:"next"`
	State S      `json:"state"`
}

// Checkpoint is a named copy of a step record.
type Checkpoint[S any] struct {
	ID     string        `json:"id"`
	RunID  string        `json:"run_id"`
	Record StepRecord[S] `json:"record"`
}

// Store persists step records and checkpoints for state type S.
//
// The engine calls SaveStep after every node, so LoadLatest always returns
// the state a suspended or interrupted run stopped in; Resume starts from
// it. Checkpoints are named copies of one record that can be restored into
// the same or a new run id.
//
// Backends:
//   - MemStore: in-process maps, for tests and single-invocation runs
//   - SQLiteStore: a local database file
//   - MySQLStore: a shared MySQL database
//   - RedisStore: hashes with a sorted step index and an optional TTL
//
// Implementations must be safe for concurrent use.
//
// Example:
//
//	st, err := store.NewSQLiteStore[team.State]("devteam.db")
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	rec, err := st.LoadLatest(ctx, "run-001")
//	if errors.Is(err, store.ErrNotFound) {
//		// no such run
//	}
type Store[S any] interface {
	// SaveStep records rec for runID. Saving the same step twice replaces
	// the earlier record.
	SaveStep(ctx context.Context, runID string, rec StepRecord[S]) error

	// LoadLatest returns the record with the highest step for runID, or
	// ErrNotFound.
	LoadLatest(ctx context.Context, runID string) (StepRecord[S], error)

	// SaveCheckpoint stores cp under cp.ID, replacing any existing one.
	SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error

	// LoadCheckpoint returns the checkpoint named cpID, or ErrNotFound.
	LoadCheckpoint(ctx context.Context, cpID string) (Checkpoint[S], error)
}
