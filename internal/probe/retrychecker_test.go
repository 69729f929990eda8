package probe

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fake checker you can control
type fakeChecker struct {
	results []CheckResult
	i       int
}

func (f *fakeChecker) Check(ctx context.Context, target string) CheckResult {
	if f.i >= len(f.results) {
		f.i++
		return CheckResult{Success: false, Message: "no more"}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func transportErr(n int) CheckResult {
	return CheckResult{Message: fmt.Sprintf("dial tcp: connection refused #%d", n)}
}

func TestRetryChecker_SucceedsAfterRetry(t *testing.T) {
	f := &fakeChecker{
		results: []CheckResult{
			transportErr(1),
			{Success: true, StatusCode: 200, Message: "200 OK", LatencyMS: 12},
		},
	}
	rc := NewRetryChecker(f, 3, 0)
	out := rc.Check(context.Background(), "https://example.com")
	if !out.Success {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if out.Attempts != 2 || f.i != 2 {
		t.Fatalf("want 2 attempts, got result=%d calls=%d", out.Attempts, f.i)
	}
}

func TestRetryChecker_StopsOnBadStatus(t *testing.T) {
	f := &fakeChecker{
		results: []CheckResult{
			{Success: false, StatusCode: 500, Message: "500 Internal Server Error", LatencyMS: 40},
			{Success: true, StatusCode: 200, Message: "200 OK"},
		},
	}
	out := NewRetryChecker(f, 3, 0).Check(context.Background(), "https://example.com")
	if out.Success || out.StatusCode != 500 {
		t.Fatalf("want the 500 response, got %+v", out)
	}
	if f.i != 1 || out.Attempts != 1 {
		t.Fatalf("a response must end the series; calls=%d", f.i)
	}
}

func TestRetryChecker_AllFailKeepsLastMessage(t *testing.T) {
	f := &fakeChecker{results: []CheckResult{transportErr(1), transportErr(2), transportErr(3)}}
	out := NewRetryChecker(f, MaxTries, 0).Check(context.Background(), "https://example.com")
	if out.Success || out.Responded() {
		t.Fatalf("expected failure, got %+v", out)
	}
	if f.i != MaxTries || out.Attempts != MaxTries {
		t.Fatalf("want exactly %d attempts, got calls=%d attempts=%d", MaxTries, f.i, out.Attempts)
	}
	if out.Message != transportErr(3).Message {
		t.Fatalf("want last attempt's message, got %q", out.Message)
	}
}

func TestRetryChecker_DefaultsToMaxTries(t *testing.T) {
	f := &fakeChecker{}
	NewRetryChecker(f, 0, -time.Second).Check(context.Background(), "x")
	if f.i != MaxTries {
		t.Fatalf("want %d attempts, got %d", MaxTries, f.i)
	}
}

func TestRetryChecker_CancelledDuringBackoff(t *testing.T) {
	f := &fakeChecker{results: []CheckResult{transportErr(1), transportErr(2), transportErr(3)}}
	ctx, cancel := context.WithCancel(context.Background())
	rc := NewRetryChecker(f, 3, time.Hour)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	out := rc.Check(ctx, "https://example.com")
	if f.i != 1 || out.Attempts != 1 {
		t.Fatalf("cancel during backoff should stop retries; calls=%d", f.i)
	}
}
