package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/core"
)

type fakeFetcher struct {
	mu    sync.Mutex
	stats map[string]*core.UserStat
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) FetchUserData(_ context.Context, username string) (*core.UserStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, username)
	if err, ok := f.errs[username]; ok {
		return nil, err
	}
	if stat, ok := f.stats[username]; ok {
		return stat, nil
	}
	return nil, &core.HTTPError{StatusCode: 404}
}

type memSnapshots struct {
	mu       sync.Mutex
	clock    func() time.Time
	items    map[string][]core.Snapshot
	writeErr error
	readErr  error
	nextID   int64
}

func newMemSnapshots(clock func() time.Time) *memSnapshots {
	return &memSnapshots{clock: clock, items: map[string][]core.Snapshot{}}
}

func (m *memSnapshots) WriteSnapshot(_ context.Context, username string, karma, posts, comments int64) (*core.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	m.nextID++
	snap := core.Snapshot{
		ID:           m.nextID,
		Username:     username,
		Karma:        karma,
		PostCount:    posts,
		CommentCount: comments,
		CollectedAt:  m.clock(),
	}
	m.items[username] = append(m.items[username], snap)
	return &snap, nil
}

func (m *memSnapshots) LatestSnapshot(_ context.Context, username string) (*core.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	list := m.items[username]
	if len(list) == 0 {
		return nil, nil
	}
	snap := list[len(list)-1]
	return &snap, nil
}

func (m *memSnapshots) seed(username string, karma int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.items[username] = append(m.items[username], core.Snapshot{ID: m.nextID, Username: username, Karma: karma, CollectedAt: at})
}

type staticUsers struct {
	users []core.TrackedUser
	err   error
}

func (s staticUsers) ListTrackedUsers(context.Context) ([]core.TrackedUser, error) {
	return s.users, s.err
}

type runSink struct {
	runs []*core.CollectionRunMetrics
}

func (r *runSink) RecordRun(_ context.Context, run *core.CollectionRunMetrics) error {
	r.runs = append(r.runs, run)
	return nil
}

func tracked(names ...string) []core.TrackedUser {
	out := make([]core.TrackedUser, 0, len(names))
	for _, name := range names {
		out = append(out, core.TrackedUser{Username: name})
	}
	return out
}

func newTestCollector(now time.Time, fetcher Fetcher, users UserSource) (*Collector, *memSnapshots, *[]time.Duration) {
	clock := func() time.Time { return now }
	snaps := newMemSnapshots(clock)
	var sleeps []time.Duration
	c := &Collector{
		Client:    fetcher,
		Users:     users,
		Snapshots: snaps,
		Log:       collectlog.New(100),
		Clock:     clock,
		Sleep: func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
		NewRunID: func() string { return "run-1" },
	}
	return c, snaps, &sleeps
}

func TestNeedsCollectionFreshness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, snaps, _ := newTestCollector(now, &fakeFetcher{}, staticUsers{})

	require.True(t, c.NeedsCollection(context.Background(), "nobody"))

	snaps.seed("fresh", 10, now.Add(-time.Hour))
	require.False(t, c.NeedsCollection(context.Background(), "fresh"))

	snaps.seed("stale", 10, now.Add(-25*time.Hour))
	require.True(t, c.NeedsCollection(context.Background(), "stale"))

	snaps.seed("edge", 10, now.Add(-24*time.Hour))
	require.True(t, c.NeedsCollection(context.Background(), "edge"))
}

func TestNeedsCollectionReadErrorCollects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, snaps, _ := newTestCollector(now, &fakeFetcher{}, staticUsers{})
	snaps.readErr = errors.New("database unavailable")

	require.True(t, c.NeedsCollection(context.Background(), "alice"))
	require.Len(t, c.Log.Entries(collectlog.LevelWarn), 1)
}

func TestCollectUserWritesSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{stats: map[string]*core.UserStat{
		"alice": core.NewUserStat("alice", 100, 50),
	}}
	c, snaps, _ := newTestCollector(now, fetcher, staticUsers{})

	snap, err := c.CollectUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(150), snap.Karma)
	require.Equal(t, now, snap.CollectedAt)

	latest, err := snaps.LatestSnapshot(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(150), latest.Karma)
}

func TestCollectUserClassifiesFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, snaps, _ := newTestCollector(now, &fakeFetcher{}, staticUsers{})

	_, err := c.CollectUser(context.Background(), "ghost")
	var classified *core.ClassifiedError
	require.ErrorAs(t, err, &classified)
	require.Equal(t, core.ErrorUserNotFound, classified.Type)
	require.False(t, classified.Retryable)
	require.Equal(t, "Reddit user not found. Please check the username and try again.", classified.Message)

	fetcher := &fakeFetcher{stats: map[string]*core.UserStat{"alice": core.NewUserStat("alice", 1, 1)}}
	c.Client = fetcher
	snaps.writeErr = errors.New("database insert snapshot: disk full")
	_, err = c.CollectUser(context.Background(), "alice")
	require.ErrorAs(t, err, &classified)
	require.Equal(t, core.ErrorDatabase, classified.Type)
}

func TestCollectUserRequiresUsername(t *testing.T) {
	c, _, _ := newTestCollector(time.Now(), &fakeFetcher{}, staticUsers{})

	_, err := c.CollectUser(context.Background(), "  ")
	var classified *core.ClassifiedError
	require.ErrorAs(t, err, &classified)
	require.Equal(t, core.ErrorInvalidData, classified.Type)
}

func TestCollectAllPartialFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{stats: map[string]*core.UserStat{
		"A": core.NewUserStat("A", 10, 5),
		"C": core.NewUserStat("C", 1, 2),
	}}
	c, snaps, _ := newTestCollector(now, fetcher, staticUsers{users: tracked("A", "B", "C")})
	runs := &runSink{}
	c.Runs = runs

	run, err := c.CollectAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", run.RunID)
	require.Equal(t, 3, run.TotalUsers)
	require.Equal(t, 2, run.SuccessfulCollections)
	require.Equal(t, 1, run.FailedCollections)
	require.Equal(t, 0, run.SkippedCollections)
	require.Equal(t, 1, run.Batches)
	require.Len(t, run.Errors, 1)
	require.Equal(t, "B", run.Errors[0].Username)
	require.Equal(t, core.ErrorUserNotFound, run.Errors[0].ErrorType)
	require.False(t, run.Errors[0].Retryable)

	require.Len(t, snaps.items["A"], 1)
	require.Len(t, snaps.items["C"], 1)
	require.Empty(t, snaps.items["B"])
	require.Len(t, runs.runs, 1)
}

func TestCollectAllSkipsFreshUsersAndBatches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stats := map[string]*core.UserStat{}
	names := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"}
	for _, name := range names {
		stats[name] = core.NewUserStat(name, 1, 1)
	}
	fetcher := &fakeFetcher{stats: stats}
	c, snaps, sleeps := newTestCollector(now, fetcher, staticUsers{users: tracked(names...)})
	c.BatchSize = 3
	snaps.seed("u2", 2, now.Add(-time.Hour))

	run, err := c.CollectAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, run.TotalUsers)
	require.Equal(t, 6, run.SuccessfulCollections)
	require.Equal(t, 1, run.SkippedCollections)
	require.Equal(t, 3, run.Batches)
	require.Equal(t, []time.Duration{DefaultBatchDelay, DefaultBatchDelay}, *sleeps)
	require.NotContains(t, fetcher.calls, "u2")
}

func TestCollectAllEndToEnd(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{stats: map[string]*core.UserStat{
		"alice": core.NewUserStat("alice", 100, 50),
	}}
	c, snaps, _ := newTestCollector(now, fetcher, staticUsers{users: tracked("alice", "bob")})

	run, err := c.CollectAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, run.TotalUsers)
	require.Equal(t, 1, run.SuccessfulCollections)
	require.Equal(t, 1, run.FailedCollections)
	require.Equal(t, 0, run.SkippedCollections)

	alice, err := snaps.LatestSnapshot(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(150), alice.Karma)
	require.Equal(t, int64(100), alice.PostCount)
	require.Equal(t, int64(50), alice.CommentCount)

	require.Len(t, run.Errors, 1)
	require.Equal(t, "bob", run.Errors[0].Username)
	require.Equal(t, core.ErrorUserNotFound, run.Errors[0].ErrorType)
	require.False(t, run.Errors[0].Retryable)

	again, err := c.CollectAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, again.SkippedCollections)
	require.Equal(t, 1, again.FailedCollections)
	require.Equal(t, 0, again.SuccessfulCollections)
}

func TestCollectAllEmpty(t *testing.T) {
	c, _, sleeps := newTestCollector(time.Now(), &fakeFetcher{}, staticUsers{})

	run, err := c.CollectAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, run.TotalUsers)
	require.Equal(t, 0, run.Batches)
	require.Empty(t, run.Errors)
	require.Empty(t, *sleeps)
}

func TestCollectAllListFailureAborts(t *testing.T) {
	c, _, _ := newTestCollector(time.Now(), &fakeFetcher{}, staticUsers{err: errors.New("database list tracked users: boom")})

	run, err := c.CollectAll(context.Background())
	require.Error(t, err)
	require.Nil(t, run)
	require.Contains(t, err.Error(), "list tracked users")
}

func TestCollectAllStopsBetweenBatchesOnCancel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stats := map[string]*core.UserStat{}
	names := []string{"a1", "a2", "a3", "a4"}
	for _, name := range names {
		stats[name] = core.NewUserStat(name, 1, 1)
	}
	c, _, _ := newTestCollector(now, &fakeFetcher{stats: stats}, staticUsers{users: tracked(names...)})
	c.BatchSize = 2
	c.Sleep = func(context.Context, time.Duration) error { return context.Canceled }

	run, err := c.CollectAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, run.Batches)
	require.Equal(t, 2, run.SuccessfulCollections)
	require.Equal(t, 2, run.SkippedCollections)
	require.Equal(t, 4, run.TotalUsers)
	require.Equal(t, run.TotalUsers, run.SuccessfulCollections+run.FailedCollections+run.SkippedCollections)
}

// batchFetcher holds every call until its whole batch is in flight and
// records any call that starts before the previous batch has returned.
type batchFetcher struct {
	mu         sync.Mutex
	batchOf    map[string]int
	sizes      []int
	started    []int
	returned   []int
	release    []chan struct{}
	timeouts   []string
	overlapped []string
}

func newBatchFetcher(batchSize int, names []string) *batchFetcher {
	f := &batchFetcher{batchOf: map[string]int{}}
	for i, name := range names {
		batch := i / batchSize
		f.batchOf[name] = batch
		if batch == len(f.sizes) {
			f.sizes = append(f.sizes, 0)
			f.started = append(f.started, 0)
			f.returned = append(f.returned, 0)
			f.release = append(f.release, make(chan struct{}))
		}
		f.sizes[batch]++
	}
	return f
}

func (f *batchFetcher) FetchUserData(ctx context.Context, username string) (*core.UserStat, error) {
	batch := f.batchOf[username]

	f.mu.Lock()
	for prev := 0; prev < batch; prev++ {
		if f.returned[prev] < f.sizes[prev] {
			f.overlapped = append(f.overlapped, username)
		}
	}
	f.started[batch]++
	if f.started[batch] == f.sizes[batch] {
		close(f.release[batch])
	}
	f.mu.Unlock()

	select {
	case <-f.release[batch]:
	case <-time.After(2 * time.Second):
		f.mu.Lock()
		f.timeouts = append(f.timeouts, username)
		f.mu.Unlock()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	f.returned[batch]++
	f.mu.Unlock()
	return core.NewUserStat(username, 1, 1), nil
}

func TestCollectAllRunsBatchesConcurrentlyWithBarrier(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	names := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"}
	fetcher := newBatchFetcher(3, names)
	c, _, sleeps := newTestCollector(now, fetcher, staticUsers{users: tracked(names...)})
	c.BatchSize = 3

	run, err := c.CollectAll(context.Background())
	require.NoError(t, err)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	require.Empty(t, fetcher.timeouts, "calls within a batch did not run concurrently")
	require.Empty(t, fetcher.overlapped, "a batch started before the previous one returned")
	require.Equal(t, []int{3, 3, 1}, fetcher.returned)
	require.Equal(t, 3, run.Batches)
	require.Equal(t, 7, run.SuccessfulCollections)
	require.Len(t, *sleeps, 2)
}

func TestCollectorNotConfigured(t *testing.T) {
	var c *Collector
	_, err := c.CollectAll(context.Background())
	require.Error(t, err)
	_, err = c.CollectUser(context.Background(), "alice")
	require.Error(t, err)
	require.True(t, c.NeedsCollection(context.Background(), "alice"))
}
