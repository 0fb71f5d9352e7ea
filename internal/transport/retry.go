package transport

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy controls automatic retries of idempotent requests. It is an
// explicit, injectable strategy so it can be unit-tested without real timers.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on the computed backoff
	Jitter      float64       // fraction of the delay randomized, 0..1

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration) error
	rand  func() float64
}

// DefaultRetryPolicy mirrors the controller client defaults: 3 attempts,
// 500ms base, doubling, 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
		sleep:       sleepCtx,
		rand:        rand.Float64,
	}
}

// Backoff returns the delay before the given retry (attempt is 1-based: the
// delay after the attempt'th try failed). Exponential with jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.Jitter > 0 && p.rand != nil {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread/2 + p.rand()*spread)
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// wait sleeps the backoff for the given attempt, honouring a server-supplied
// retry-after when it is longer.
func (p RetryPolicy) wait(ctx context.Context, attempt int, retryAfter time.Duration) error {
	d := p.Backoff(attempt)
	if retryAfter > d {
		d = retryAfter
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, d)
}

// idempotent reports whether a method is safe to retry after an ambiguous
// failure. POST and PUT mutations are never retried automatically because a
// retry could double-apply a mutation.
func idempotent(method string) bool {
	switch method {
	case "GET", "HEAD", "DELETE":
		return true
	default:
		return false
	}
}

// retriable reports whether the error from one attempt justifies another.
func retriable(err error) bool {
	switch KindOf(err) {
	case KindServer, KindRateLimit, KindTimeout:
		return true
	default:
		return false
	}
}
