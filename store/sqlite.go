package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS devteam_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			next_node TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devteam_steps_run_id ON devteam_steps(run_id)`,
		`CREATE TABLE IF NOT EXISTS devteam_checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			checkpoint_id TEXT NOT NULL UNIQUE,
			run_id TEXT NOT NULL,
			record TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	upsertStep: `
		INSERT INTO devteam_steps (run_id, step, node_id, next_node, state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			next_node = excluded.next_node,
			state = excluded.state`,
	upsertCheckpnt: `
		INSERT INTO devteam_checkpoints (checkpoint_id, run_id, record)
		VALUES (?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			run_id = excluded.run_id,
			record = excluded.record,
			updated_at = CURRENT_TIMESTAMP`,
}

// SQLiteStore persists snapshots in a single SQLite file using the pure Go
// modernc.org/sqlite driver. Use ":memory:" for a throwaway database.
type SQLiteStore[S any] struct {
	sqlStore[S]
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps a
	// :memory: database alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{sqlStore: sqlStore[S]{db: db, dialect: sqliteDialect}, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string { return s.path }
