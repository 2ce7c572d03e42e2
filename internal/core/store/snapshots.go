package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/karmalens/karmalens/internal/core"
)

// DefaultHistoryLimit bounds ListSnapshots when no limit is given.
const DefaultHistoryLimit = 100

// WriteSnapshot stores a point-in-time record stamped with the store clock.
func (s *Store) WriteSnapshot(ctx context.Context, username string, karma, postCount, commentCount int64) (*core.Snapshot, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(username)
	if name == "" {
		return nil, errors.New("username is required")
	}

	collectedAt := s.now()
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO snapshots (username, karma, post_count, comment_count, collected_at)
		VALUES (?, ?, ?, ?, ?)
	`, name, karma, postCount, commentCount, collectedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("database insert snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("database insert snapshot: %w", err)
	}

	return &core.Snapshot{
		ID:           id,
		Username:     name,
		Karma:        karma,
		PostCount:    postCount,
		CommentCount: commentCount,
		CollectedAt:  time.Unix(collectedAt.Unix(), 0).UTC(),
	}, nil
}

// LatestSnapshot returns the most recent snapshot, or nil when none exists.
func (s *Store) LatestSnapshot(ctx context.Context, username string) (*core.Snapshot, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, username, karma, post_count, comment_count, collected_at
		FROM snapshots
		WHERE username = ?
		ORDER BY collected_at DESC, id DESC
		LIMIT 1
	`, strings.TrimSpace(username))

	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("database latest snapshot: %w", err)
	}
	return snapshot, nil
}

// ListSnapshots returns up to limit snapshots for username, newest first.
func (s *Store) ListSnapshots(ctx context.Context, username string, limit int) ([]core.Snapshot, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, username, karma, post_count, comment_count, collected_at
		FROM snapshots
		WHERE username = ?
		ORDER BY collected_at DESC, id DESC
		LIMIT ?
	`, strings.TrimSpace(username), limit)
	if err != nil {
		return nil, fmt.Errorf("database list snapshots: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	snapshots := make([]core.Snapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("database scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database list snapshots: %w", err)
	}
	return snapshots, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*core.Snapshot, error) {
	var (
		snapshot    core.Snapshot
		collectedAt int64
	)
	if err := row.Scan(&snapshot.ID, &snapshot.Username, &snapshot.Karma, &snapshot.PostCount, &snapshot.CommentCount, &collectedAt); err != nil {
		return nil, err
	}
	snapshot.CollectedAt = time.Unix(collectedAt, 0).UTC()
	return &snapshot, nil
}
