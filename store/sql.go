package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	schema         []string
	upsertStep     string
	upsertCheckpnt string
}

// sqlStore implements Store over database/sql. The SQLite and MySQL stores
// embed it with their own dialect.
type sqlStore[S any] struct {
	db      *sql.DB
	mu      sync.RWMutex
	closed  bool
	dialect dialect
}

func (s *sqlStore[S]) createTables(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore[S]) open() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep implements Store.
func (s *sqlStore[S]) SaveStep(ctx context.Context, runID string, rec StepRecord[S]) error {
	if err := s.open(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.dialect.upsertStep, runID, rec.Step, rec.NodeID, rec.Next, string(stateJSON))
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (s *sqlStore[S]) LoadLatest(ctx context.Context, runID string) (StepRecord[S], error) {
	var rec StepRecord[S]
	if err := s.open(); err != nil {
		return rec, err
	}

	const query = `
		SELECT step, node_id, next_node, state
		FROM devteam_steps
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1`

	var stateJSON string
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&rec.Step, &rec.NodeID, &rec.Next, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to load latest step: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		return rec, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return rec, nil
}

// SaveCheckpoint implements Store.
func (s *sqlStore[S]) SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error {
	if err := s.open(); err != nil {
		return err
	}
	recJSON, err := json.Marshal(cp.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsertCheckpnt, cp.ID, cp.RunID, string(recJSON)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint implements Store.
func (s *sqlStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (Checkpoint[S], error) {
	cp := Checkpoint[S]{ID: cpID}
	if err := s.open(); err != nil {
		return cp, err
	}

	const query = `SELECT run_id, record FROM devteam_checkpoints WHERE checkpoint_id = ?`
	var recJSON string
	err := s.db.QueryRowContext(ctx, query, cpID).Scan(&cp.RunID, &recJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, ErrNotFound
	}
	if err != nil {
		return cp, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(recJSON), &cp.Record); err != nil {
		return cp, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Close closes the database. Calling Close more than once is a no-op.
func (s *sqlStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *sqlStore[S]) Ping(ctx context.Context) error {
	if err := s.open(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}
