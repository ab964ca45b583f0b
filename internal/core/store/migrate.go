package store

import (
	"context"
	"fmt"
)

// Timestamps are unix milliseconds so the same schema runs on libsql and
// postgres.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS audit_runs (
		id TEXT PRIMARY KEY,
		target_url TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		progress_message TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		total_score INTEGER,
		platform TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		started_at BIGINT,
		finished_at BIGINT,
		elapsed_ms BIGINT NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_runs_status ON audit_runs(status, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_runs_domain ON audit_runs(domain);`,
	`CREATE TABLE IF NOT EXISTS audit_results (
		run_id TEXT PRIMARY KEY,
		result_json TEXT NOT NULL,
		created_at BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS audit_progress (
		run_id TEXT NOT NULL,
		percent INTEGER NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		recorded_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_progress_run ON audit_progress(run_id, recorded_at);`,
	`CREATE TABLE IF NOT EXISTS rate_limits (
		service TEXT PRIMARY KEY,
		request_count INTEGER NOT NULL DEFAULT 0,
		window_start BIGINT NOT NULL,
		backoff_until BIGINT,
		last_429_at BIGINT
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}
	return nil
}
