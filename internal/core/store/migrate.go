package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tracked_users (
		username TEXT PRIMARY KEY COLLATE NOCASE,
		added_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL COLLATE NOCASE,
		karma INTEGER NOT NULL,
		post_count INTEGER NOT NULL,
		comment_count INTEGER NOT NULL,
		collected_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_user_time ON snapshots(username, collected_at DESC);`,
	`CREATE TABLE IF NOT EXISTS collection_runs (
		run_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		total_users INTEGER NOT NULL,
		successful INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		batches INTEGER NOT NULL DEFAULT 0,
		errors_json TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_collection_runs_started ON collection_runs(started_at DESC);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
	}

	return s.ensureColumn(ctx, "collection_runs", "batches", "INTEGER NOT NULL DEFAULT 0")
}

func (s *Store) ensureColumn(ctx context.Context, table, column, columnDef string) error {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}
	return nil
}
