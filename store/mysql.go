package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS devteam_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			next_node VARCHAR(255) NOT NULL DEFAULT '',
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run_id (run_id),
			UNIQUE KEY unique_run_step (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS devteam_checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			checkpoint_id VARCHAR(255) NOT NULL UNIQUE,
			run_id VARCHAR(255) NOT NULL,
			record JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	},
	upsertStep: `
		INSERT INTO devteam_steps (run_id, step, node_id, next_node, state)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			next_node = VALUES(next_node),
			state = VALUES(state)`,
	upsertCheckpnt: `
		INSERT INTO devteam_checkpoints (checkpoint_id, run_id, record)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			run_id = VALUES(run_id),
			record = VALUES(record)`,
}

// MySQLStore persists snapshots in MySQL or MariaDB.
//
// The DSN uses the go-sql-driver format, for example
//
//	user:password@tcp(localhost:3306)/devteam?parseTime=true
//
// Keep credentials out of source; the CLI reads the DSN from configuration
// or DEVTEAM_STORE_DSN.
type MySQLStore[S any] struct {
	sqlStore[S]
}

// NewMySQLStore connects to dsn and creates the schema if it is missing.
func NewMySQLStore[S any](ctx context.Context, dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{sqlStore[S]{db: db, dialect: mysqlDialect}}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Stats returns the connection pool statistics.
func (s *MySQLStore[S]) Stats() sql.DBStats {
	return s.db.Stats()
}
