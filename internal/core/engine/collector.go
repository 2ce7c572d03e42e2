package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/metrics"
)

// Collection defaults.
const (
	DefaultBatchSize       = 5
	DefaultBatchDelay      = 2 * time.Second
	DefaultFreshnessWindow = 24 * time.Hour
)

// Fetcher retrieves current statistics for a Reddit user.
type Fetcher interface {
	FetchUserData(ctx context.Context, username string) (*core.UserStat, error)
}

// UserSource lists the usernames to collect.
type UserSource interface {
	ListTrackedUsers(ctx context.Context) ([]core.TrackedUser, error)
}

// SnapshotStore persists and reads karma snapshots.
type SnapshotStore interface {
	WriteSnapshot(ctx context.Context, username string, karma, postCount, commentCount int64) (*core.Snapshot, error)
	LatestSnapshot(ctx context.Context, username string) (*core.Snapshot, error)
}

// RunRecorder persists finished run metrics.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *core.CollectionRunMetrics) error
}

// Collector runs collection over tracked users in concurrent batches.
type Collector struct {
	Client    Fetcher
	Users     UserSource
	Snapshots SnapshotStore
	Runs      RunRecorder
	Log       *collectlog.Log

	BatchSize       int
	BatchDelay      time.Duration
	FreshnessWindow time.Duration

	Clock    func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	NewRunID func() string
}

// CollectUser fetches and stores a fresh snapshot for username regardless of
// freshness. Failures are returned as *core.ClassifiedError.
func (c *Collector) CollectUser(ctx context.Context, username string) (*core.Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	name := strings.TrimSpace(username)
	if name == "" {
		return nil, core.NewClassifiedError(core.ErrorInvalidData, "", 0, errors.New("username is required"))
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	stat, err := c.Client.FetchUserData(ctx, name)
	if err != nil {
		return nil, core.Classify(err, name)
	}

	snapshot, err := c.Snapshots.WriteSnapshot(ctx, name, stat.Karma, stat.PostCount, stat.CommentCount)
	if err != nil {
		return nil, core.Classify(err, name)
	}

	c.Log.Info("Collected user data", map[string]any{
		"username": name,
		"karma":    snapshot.Karma,
	})
	return snapshot, nil
}

// NeedsCollection is false only when the latest snapshot is younger than the
// freshness window. A failed read counts as stale.
func (c *Collector) NeedsCollection(ctx context.Context, username string) bool {
	if c == nil || c.Snapshots == nil {
		return true
	}
	if ctx == nil {
		ctx = context.Background()
	}

	latest, err := c.Snapshots.LatestSnapshot(ctx, username)
	if err != nil {
		c.Log.Warn("Failed to read latest snapshot; collecting anyway", map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return true
	}
	if latest == nil {
		return true
	}
	return c.now().Sub(latest.CollectedAt) >= c.freshnessWindow()
}

// CollectAll collects every tracked user. Per-user failures are recorded in
// the returned metrics; only a failure to list users aborts the run.
func (c *Collector) CollectAll(ctx context.Context) (*core.CollectionRunMetrics, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Users == nil {
		return nil, errors.New("collector user source is not configured")
	}

	run := &core.CollectionRunMetrics{
		RunID:     c.runID(),
		StartTime: c.now(),
		Errors:    []core.CollectionError{},
	}

	users, err := c.Users.ListTrackedUsers(ctx)
	if err != nil {
		c.Log.Error("Failed to list tracked users", map[string]any{"run_id": run.RunID, "error": err.Error()})
		metrics.RecordCollectionRun(false, c.now().Sub(run.StartTime))
		return nil, fmt.Errorf("list tracked users: %w", err)
	}

	run.TotalUsers = len(users)
	c.Log.Info("Starting collection run", map[string]any{"run_id": run.RunID, "total_users": run.TotalUsers})

	size := c.batchSize()
	var mu sync.Mutex
	for start := 0; start < len(users); start += size {
		end := start + size
		if end > len(users) {
			end = len(users)
		}
		run.Batches++

		var wg sync.WaitGroup
		for _, user := range users[start:end] {
			wg.Add(1)
			go func(username string) {
				defer wg.Done()
				outcome, failure := c.collectTracked(ctx, username)

				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case metrics.OutcomeSuccess:
					run.SuccessfulCollections++
				case metrics.OutcomeSkipped:
					run.SkippedCollections++
				default:
					run.FailedCollections++
					run.Errors = append(run.Errors, *failure)
				}
			}(user.Username)
		}
		wg.Wait()

		if end < len(users) {
			if err := c.sleep(ctx, c.batchDelay()); err != nil {
				c.Log.Warn("Collection run interrupted between batches", map[string]any{
					"run_id":    run.RunID,
					"remaining": len(users) - end,
					"error":     err.Error(),
				})
				// Unvisited users are reported as skipped so the totals still add up.
				run.SkippedCollections += len(users) - end
				break
			}
		}
	}

	run.Finalize(c.now())
	c.finishRun(ctx, run)
	return run, nil
}

func (c *Collector) collectTracked(ctx context.Context, username string) (string, *core.CollectionError) {
	if !c.NeedsCollection(ctx, username) {
		c.Log.Debug("Skipping fresh user", map[string]any{"username": username})
		metrics.RecordUserCollection(metrics.OutcomeSkipped)
		return metrics.OutcomeSkipped, nil
	}

	if _, err := c.CollectUser(ctx, username); err != nil {
		classified := core.Classify(err, username)
		c.Log.Error("Failed to collect user data", map[string]any{
			"username":   username,
			"error_type": string(classified.Type),
			"error":      classified.Error(),
		})
		metrics.RecordUserCollection(metrics.OutcomeFailed)
		metrics.RecordCollectionError(string(classified.Type))
		return metrics.OutcomeFailed, &core.CollectionError{
			Username:  username,
			Error:     classified.Message,
			ErrorType: classified.Type,
			Retryable: classified.Retryable,
		}
	}

	metrics.RecordUserCollection(metrics.OutcomeSuccess)
	return metrics.OutcomeSuccess, nil
}

func (c *Collector) finishRun(ctx context.Context, run *core.CollectionRunMetrics) {
	if c.Runs != nil {
		if err := c.Runs.RecordRun(ctx, run); err != nil {
			c.Log.Warn("Failed to persist collection run", map[string]any{"run_id": run.RunID, "error": err.Error()})
		}
	}

	metrics.RecordCollectionRun(true, run.Duration)
	c.Log.Info("Collection run completed", map[string]any{
		"run_id":      run.RunID,
		"total_users": run.TotalUsers,
		"successful":  run.SuccessfulCollections,
		"failed":      run.FailedCollections,
		"skipped":     run.SkippedCollections,
		"duration_ms": run.Duration.Milliseconds(),
	})
}

func (c *Collector) validate() error {
	if c == nil || c.Client == nil || c.Snapshots == nil {
		return errors.New("collector is not configured")
	}
	return nil
}

func (c *Collector) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

func (c *Collector) batchDelay() time.Duration {
	if c.BatchDelay > 0 {
		return c.BatchDelay
	}
	return DefaultBatchDelay
}

func (c *Collector) freshnessWindow() time.Duration {
	if c.FreshnessWindow > 0 {
		return c.FreshnessWindow
	}
	return DefaultFreshnessWindow
}

func (c *Collector) runID() string {
	if c.NewRunID != nil {
		return c.NewRunID()
	}
	return uuid.New().String()
}

func (c *Collector) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (c *Collector) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
