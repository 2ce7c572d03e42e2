package reddit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/core/engine"
)

type instantTimer struct {
	c chan time.Time
}

func newInstantTimer() backoff.Timer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(time.Duration) { t.c <- time.Time{} }
func (t *instantTimer) Stop()                {}
func (t *instantTimer) C() <-chan time.Time  { return t.c }

func testRetrier(maxRetries int) *engine.Retrier {
	retrier := engine.NewRetrier(engine.RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond}, collectlog.New(50))
	retrier.NewTimer = newInstantTimer
	retrier.Jitter = func(time.Duration) time.Duration { return 0 }
	return retrier
}

func testLimiter() *engine.SlidingWindowLimiter {
	limiter := engine.NewSlidingWindowLimiter(engine.RateLimitConfig{MaxRequests: 100, Window: time.Minute})
	limiter.Sleep = func(context.Context, time.Duration) error { return nil }
	return limiter
}
