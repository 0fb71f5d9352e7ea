package transport

import (
	"context"
	"testing"
	"time"
)

func fixedPolicy(jitter float64) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Jitter = jitter
	p.rand = func() float64 { return 0.5 } // centre of the spread
	return p
}

func TestBackoffDoubles(t *testing.T) {
	p := fixedPolicy(0)

	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestBackoffCapped(t *testing.T) {
	p := fixedPolicy(0)
	p.MaxDelay = 3 * time.Second

	if got := p.Backoff(10); got != 3*time.Second {
		t.Errorf("Backoff(10) = %s, want cap %s", got, 3*time.Second)
	}
}

func TestBackoffJitterSpread(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Jitter = 0.2

	p.rand = func() float64 { return 0 }
	low := p.Backoff(1)
	p.rand = func() float64 { return 1 }
	high := p.Backoff(1)

	base := 500 * time.Millisecond
	if low >= high {
		t.Errorf("jitter produced no spread: low %s high %s", low, high)
	}
	if low < time.Duration(float64(base)*0.9) || high > time.Duration(float64(base)*1.1) {
		t.Errorf("jitter out of 20%% band: low %s high %s", low, high)
	}
}

func TestWaitHonoursRetryAfter(t *testing.T) {
	p := fixedPolicy(0)
	var slept time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	// A server retry-after longer than the backoff wins.
	if err := p.wait(context.Background(), 1, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if slept != 5*time.Second {
		t.Errorf("slept %s, want 5s from Retry-After", slept)
	}

	// A shorter retry-after defers to the computed backoff.
	if err := p.wait(context.Background(), 2, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if slept != time.Second {
		t.Errorf("slept %s, want 1s backoff", slept)
	}
}

func TestIdempotentMethods(t *testing.T) {
	for _, m := range []string{"GET", "HEAD", "DELETE"} {
		if !idempotent(m) {
			t.Errorf("%s should be retryable", m)
		}
	}
	for _, m := range []string{"POST", "PUT", "PATCH"} {
		if idempotent(m) {
			t.Errorf("%s must never be retried automatically", m)
		}
	}
}

func TestRetriableKinds(t *testing.T) {
	if !retriable(NewError(KindServer, "boom")) {
		t.Error("server errors should be retriable")
	}
	if !retriable(NewError(KindRateLimit, "slow down")) {
		t.Error("rate limit errors should be retriable")
	}
	if !retriable(NewError(KindTimeout, "slow")) {
		t.Error("timeouts should be retriable")
	}
	for _, kind := range []Kind{KindAuthentication, KindAuthorization, KindNotFound, KindConflict, KindValidation, KindIntegrity, KindConfiguration} {
		if retriable(NewError(kind, "no")) {
			t.Errorf("%s errors must not be retried", kind)
		}
	}
}
