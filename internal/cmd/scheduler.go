package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/core"
)

type runner interface {
	CollectAll(ctx context.Context) (*core.CollectionRunMetrics, error)
}

// collectionScheduler runs a full collection every Interval until the
// context is cancelled. A zero interval disables it.
type collectionScheduler struct {
	Collector runner
	Interval  time.Duration
	Logger    *logging.Logger

	// tick is replaced in tests.
	tick func(d time.Duration) (<-chan time.Time, func())
}

func (s *collectionScheduler) Run(ctx context.Context) {
	if s == nil || s.Collector == nil || s.Interval <= 0 {
		return
	}

	tick := s.tick
	if tick == nil {
		tick = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}
	ch, stop := tick(s.Interval)
	defer stop()

	s.info("Collection scheduler started", zap.Duration("interval", s.Interval))
	for {
		select {
		case <-ctx.Done():
			s.info("Collection scheduler stopped")
			return
		case <-ch:
			s.runOnce(ctx)
		}
	}
}

func (s *collectionScheduler) runOnce(ctx context.Context) {
	run, err := s.Collector.CollectAll(ctx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("Scheduled collection failed", zap.Error(err))
		}
		return
	}
	s.info("Scheduled collection finished",
		zap.String("run_id", run.RunID),
		zap.Int("successful", run.SuccessfulCollections),
		zap.Int("failed", run.FailedCollections),
		zap.Int("skipped", run.SkippedCollections))
}

func (s *collectionScheduler) info(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Info(msg, fields...)
	}
}
