package engine

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig configures a sliding window limiter.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	RetryAfter  time.Duration
}

// DefaultRateLimit matches Reddit's documented allowance for OAuth clients.
var DefaultRateLimit = RateLimitConfig{
	MaxRequests: 60,
	Window:      time.Minute,
	RetryAfter:  60 * time.Second,
}

// SlidingWindowLimiter throttles callers to roughly MaxRequests per Window.
//
// Waiters release the lock while sleeping, so concurrent callers may compute
// overlapping waits and briefly overshoot the limit. Admission is approximate.
type SlidingWindowLimiter struct {
	MaxRequests int
	Window      time.Duration
	RetryAfter  time.Duration
	Clock       func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	timestamps   []time.Time
	backoffUntil time.Time
}

// NewSlidingWindowLimiter builds a limiter, filling zero values from DefaultRateLimit.
func NewSlidingWindowLimiter(cfg RateLimitConfig) *SlidingWindowLimiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultRateLimit.MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultRateLimit.Window
	}
	if cfg.RetryAfter < 0 {
		cfg.RetryAfter = 0
	}
	return &SlidingWindowLimiter{
		MaxRequests: cfg.MaxRequests,
		Window:      cfg.Window,
		RetryAfter:  cfg.RetryAfter,
	}
}

// Wait blocks until a request may be sent, then records it.
func (l *SlidingWindowLimiter) Wait(ctx context.Context) error {
	if l == nil || l.MaxRequests <= 0 || l.Window <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		wait := l.reserve(now)
		l.mu.Unlock()

		if wait <= 0 {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve records a request at now and returns zero, or returns how long the
// caller must wait before trying again. Callers hold l.mu.
func (l *SlidingWindowLimiter) reserve(now time.Time) time.Duration {
	if now.Before(l.backoffUntil) {
		return l.backoffUntil.Sub(now)
	}

	l.prune(now)
	if len(l.timestamps) >= l.MaxRequests {
		wait := l.Window - now.Sub(l.timestamps[0])
		if wait > 0 {
			return wait
		}
	}

	l.timestamps = append(l.timestamps, now)
	return 0
}

func (l *SlidingWindowLimiter) prune(now time.Time) {
	keep := 0
	for keep < len(l.timestamps) && now.Sub(l.timestamps[keep]) >= l.Window {
		keep++
	}
	if keep > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[keep:]...)
	}
}

// Backoff pauses all callers for at least d, or RetryAfter when d is shorter.
func (l *SlidingWindowLimiter) Backoff(d time.Duration) {
	if l == nil {
		return
	}
	if d < l.RetryAfter {
		d = l.RetryAfter
	}
	if d <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	until := l.now().Add(d)
	if until.After(l.backoffUntil) {
		l.backoffUntil = until
	}
}

// InWindow returns the number of requests recorded in the current window.
func (l *SlidingWindowLimiter) InWindow() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.timestamps)
}

func (l *SlidingWindowLimiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

func (l *SlidingWindowLimiter) sleep(ctx context.Context, d time.Duration) error {
	if l.Sleep != nil {
		return l.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
