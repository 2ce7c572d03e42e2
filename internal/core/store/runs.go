package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/karmalens/karmalens/internal/core"
)

// RecordRun persists a finished collection run.
func (s *Store) RecordRun(ctx context.Context, run *core.CollectionRunMetrics) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if run == nil || run.RunID == "" {
		return errors.New("run id is required")
	}

	errs := run.Errors
	if errs == nil {
		errs = []core.CollectionError{}
	}
	payload, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode run errors: %w", err)
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO collection_runs (
			run_id, started_at, ended_at, duration_ms, total_users,
			successful, failed, skipped, batches, errors_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			duration_ms = excluded.duration_ms,
			total_users = excluded.total_users,
			successful = excluded.successful,
			failed = excluded.failed,
			skipped = excluded.skipped,
			batches = excluded.batches,
			errors_json = excluded.errors_json
	`,
		run.RunID,
		run.StartTime.UTC().UnixMilli(),
		run.EndTime.UTC().UnixMilli(),
		run.Duration.Milliseconds(),
		run.TotalUsers,
		run.SuccessfulCollections,
		run.FailedCollections,
		run.SkippedCollections,
		run.Batches,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("database record run: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*core.CollectionRunMetrics, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]core.CollectionRunMetrics, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT run_id, started_at, ended_at, duration_ms, total_users,
			successful, failed, skipped, batches, errors_json
		FROM collection_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("database list runs: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	runs := make([]core.CollectionRunMetrics, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row rowScanner) (*core.CollectionRunMetrics, error) {
	var (
		run        core.CollectionRunMetrics
		startedAt  int64
		endedAt    int64
		durationMs int64
		errorsJSON sql.NullString
	)
	if err := row.Scan(
		&run.RunID,
		&startedAt,
		&endedAt,
		&durationMs,
		&run.TotalUsers,
		&run.SuccessfulCollections,
		&run.FailedCollections,
		&run.SkippedCollections,
		&run.Batches,
		&errorsJSON,
	); err != nil {
		return nil, fmt.Errorf("database scan run: %w", err)
	}

	run.StartTime = time.UnixMilli(startedAt).UTC()
	run.EndTime = time.UnixMilli(endedAt).UTC()
	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.Errors = []core.CollectionError{}
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &run.Errors); err != nil {
			return nil, fmt.Errorf("decode run errors: %w", err)
		}
	}
	return &run, nil
}
