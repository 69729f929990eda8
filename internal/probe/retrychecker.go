package probe

import (
	"context"
	"time"
)

// RetryChecker repeats Inner until an attempt produces an HTTP response or
// Attempts is exhausted. A response of any status ends the series; only
// transport failures are retried. The returned result is the last attempt's,
// with Attempts set to the number made.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func NewRetryChecker(inner Checker, attempts int, backoff time.Duration) *RetryChecker {
	if attempts < 1 {
		attempts = MaxTries
	}
	if backoff < 0 {
		backoff = 0
	}
	return &RetryChecker{Inner: inner, Attempts: attempts, Backoff: backoff}
}

func (r *RetryChecker) Check(ctx context.Context, target string) CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last CheckResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		last.Attempts = i + 1
		if last.Responded() {
			return last
		}
		if i < attempts-1 && !r.wait(ctx) {
			return last
		}
	}
	return last
}

// wait sleeps for Backoff; false means ctx ended first.
func (r *RetryChecker) wait(ctx context.Context) bool {
	if r.Backoff <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(r.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
