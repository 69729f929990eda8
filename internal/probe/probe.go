package probe

import "context"

const (
	// MaxTries is the number of attempts made per cycle.
	MaxTries = 3
)

// CheckResult is the outcome of one probe attempt (or, from RetryChecker, of
// the final attempt in a series).
//
// Fields:
//   - StatusCode: HTTP status when a response arrived; 0 for transport errors
//     and timeouts.
//   - Message: resp.Status on a response, the error text otherwise.
//   - Attempts: how many attempts produced this result (1 for a single probe).
type CheckResult struct {
	Success    bool
	LatencyMS  float64
	Message    string
	StatusCode int
	Attempts   int
}

// Responded reports whether the attempt got any HTTP response at all.
func (r CheckResult) Responded() bool { return r.StatusCode != 0 }

// Checker performs a check for a given target URL.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}
