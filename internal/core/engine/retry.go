package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/metrics"
)

// RetryPolicy is the backoff schedule for retryable failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxJitter  time.Duration
}

// DefaultRetryPolicy is used when a zero policy is supplied.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   30 * time.Second,
	MaxJitter:  time.Second,
}

// BaseDelayFor returns the unjittered delay before retry k (0-indexed).
func (p RetryPolicy) BaseDelayFor(k int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 0; i < k; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Retrier runs operations under a RetryPolicy. Failures are classified once;
// only the Retryable flag decides whether another attempt is made.
// NewTimer overrides the wait between attempts; nil uses real timers.
type Retrier struct {
	Policy   RetryPolicy
	Log      *collectlog.Log
	NewTimer func() backoff.Timer
	Jitter   func(max time.Duration) time.Duration
}

// NewRetrier builds a Retrier, filling zero values from DefaultRetryPolicy.
func NewRetrier(policy RetryPolicy, log *collectlog.Log) *Retrier {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if policy.MaxJitter <= 0 {
		policy.MaxJitter = DefaultRetryPolicy.MaxJitter
	}
	return &Retrier{Policy: policy, Log: log}
}

// Do runs op until it succeeds, fails permanently, or the retries run out.
// Non-retryable failures return the *core.ClassifiedError after one attempt.
func (r *Retrier) Do(ctx context.Context, username string, op func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil {
		return op(ctx)
	}

	attempts := 0
	var last *core.ClassifiedError

	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		last = core.Classify(err, username)
		if !last.Retryable {
			return backoff.Permanent(last)
		}
		return last
	}

	notify := func(err error, delay time.Duration) {
		r.logRetry(username, attempts, delay, last)
	}

	schedule := &policyBackOff{policy: r.Policy, jitter: r.jitter}
	b := backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(r.Policy.MaxRetries)), ctx)

	var timer backoff.Timer
	if r.NewTimer != nil {
		timer = r.NewTimer()
	}
	err := backoff.RetryNotifyWithTimer(operation, b, notify, timer)
	if err == nil {
		return nil
	}

	var classified *core.ClassifiedError
	if !errors.As(err, &classified) {
		// context cancellation surfaces here
		return err
	}
	if !classified.Retryable {
		return classified
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, classified)
}

func (r *Retrier) logRetry(username string, attempt int, delay time.Duration, last *core.ClassifiedError) {
	errType := core.ErrorUnknown
	message := ""
	if last != nil {
		errType = last.Type
		message = last.Error()
	}
	metrics.RecordRetry(string(errType))
	r.Log.Warn(fmt.Sprintf("Retry attempt %d after %s", attempt, delay), map[string]any{
		"username":   username,
		"attempt":    attempt,
		"delay_ms":   delay.Milliseconds(),
		"error_type": string(errType),
		"error":      message,
	})
}

func (r *Retrier) jitter(max time.Duration) time.Duration {
	if r.Jitter != nil {
		return r.Jitter(max)
	}
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// policyBackOff yields min(base*2^k, max) plus jitter for retry k.
type policyBackOff struct {
	policy RetryPolicy
	jitter func(max time.Duration) time.Duration
	k      int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	delay := b.policy.BaseDelayFor(b.k) + b.jitter(b.policy.MaxJitter)
	b.k++
	return delay
}

func (b *policyBackOff) Reset() {
	b.k = 0
}
