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

// AddTrackedUser starts tracking username. Adding an existing user returns
// the stored row unchanged.
func (s *Store) AddTrackedUser(ctx context.Context, username string) (*core.TrackedUser, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(username)
	if name == "" {
		return nil, errors.New("username is required")
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO tracked_users (username, added_at)
		VALUES (?, ?)
		ON CONFLICT(username) DO NOTHING
	`, name, s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("database insert tracked user: %w", err)
	}

	return s.getTrackedUser(ctx, name)
}

// RemoveTrackedUser stops tracking username. Snapshots are kept.
func (s *Store) RemoveTrackedUser(ctx context.Context, username string) (bool, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return false, err
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM tracked_users WHERE username = ?`, strings.TrimSpace(username))
	if err != nil {
		return false, fmt.Errorf("database delete tracked user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("database delete tracked user: %w", err)
	}
	return affected > 0, nil
}

// ListTrackedUsers returns every tracked user ordered by username.
func (s *Store) ListTrackedUsers(ctx context.Context) ([]core.TrackedUser, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT username, added_at
		FROM tracked_users
		ORDER BY username COLLATE NOCASE
	`)
	if err != nil {
		return nil, fmt.Errorf("database list tracked users: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	users := make([]core.TrackedUser, 0)
	for rows.Next() {
		var (
			user    core.TrackedUser
			addedAt int64
		)
		if err := rows.Scan(&user.Username, &addedAt); err != nil {
			return nil, fmt.Errorf("database scan tracked user: %w", err)
		}
		user.AddedAt = time.Unix(addedAt, 0).UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database list tracked users: %w", err)
	}
	return users, nil
}

// IsTracked reports whether username is tracked.
func (s *Store) IsTracked(ctx context.Context, username string) (bool, error) {
	user, err := s.getTrackedUser(ctx, strings.TrimSpace(username))
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

func (s *Store) getTrackedUser(ctx context.Context, username string) (*core.TrackedUser, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	var (
		user    core.TrackedUser
		addedAt int64
	)
	row := s.DB.QueryRowContext(ctx, `SELECT username, added_at FROM tracked_users WHERE username = ?`, username)
	if err := row.Scan(&user.Username, &addedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("database get tracked user: %w", err)
	}
	user.AddedAt = time.Unix(addedAt, 0).UTC()
	return &user, nil
}
