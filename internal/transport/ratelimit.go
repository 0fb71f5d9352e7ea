package transport

import (
	"context"
	"sync"
	"time"
)

// RateBudget is a fixed-window request budget shared by all callers of one
// Client. The consumed counter resets only when a window boundary passes,
// never mid-window. Acquire blocks until budget is available, capped at
// MaxWait, so read-only callers do not need bespoke retry logic.
type RateBudget struct {
	mu          sync.Mutex
	windowStart time.Time
	consumed    int

	ceiling int
	window  time.Duration
	maxWait time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRateBudget creates a budget of ceiling requests per window. maxWait
// bounds how long Acquire will block waiting for the window to reset; zero
// means 2x the window.
func NewRateBudget(ceiling int, window, maxWait time.Duration) *RateBudget {
	if maxWait <= 0 {
		maxWait = 2 * window
	}
	return &RateBudget{
		ceiling: ceiling,
		window:  window,
		maxWait: maxWait,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Acquire consumes one unit of budget, blocking until the current window
// resets if the ceiling has been reached. The lock is only held for the
// accounting itself, never across a sleep or a network call.
func (rb *RateBudget) Acquire(ctx context.Context) error {
	if rb == nil || rb.ceiling <= 0 {
		return nil
	}

	deadline := rb.now().Add(rb.maxWait)
	for {
		wait, ok := rb.tryConsume()
		if ok {
			return nil
		}

		if rb.now().Add(wait).After(deadline) {
			return &Error{
				Kind:       KindRateLimit,
				Message:    "request budget exhausted",
				RetryAfter: wait,
			}
		}
		if err := rb.sleep(ctx, wait); err != nil {
			return WrapError(KindTimeout, err, "waiting for request budget")
		}
	}
}

// tryConsume attempts to consume a unit. On failure it returns how long
// until the current window resets.
func (rb *RateBudget) tryConsume() (time.Duration, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	now := rb.now()
	if rb.windowStart.IsZero() || now.Sub(rb.windowStart) >= rb.window {
		rb.windowStart = now
		rb.consumed = 0
	}

	if rb.consumed < rb.ceiling {
		rb.consumed++
		return 0, true
	}

	return rb.window - now.Sub(rb.windowStart), false
}

// Remaining reports how much budget is left in the current window.
func (rb *RateBudget) Remaining() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.windowStart.IsZero() || rb.now().Sub(rb.windowStart) >= rb.window {
		return rb.ceiling
	}
	return rb.ceiling - rb.consumed
}
