package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

const DefaultTimeout = 5 * time.Second

type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPChecker{
		Client: &http.Client{Timeout: timeout},
	}
}

// Check issues a single GET. Any status in [200, 400) is a success.
func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return CheckResult{Success: false, Message: err.Error(), Attempts: 1}
	}
	req.Header.Set("User-Agent", "uptimemonitor/1.0")

	resp, err := h.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return CheckResult{Success: false, Message: err.Error(), LatencyMS: latency, Attempts: 1}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return CheckResult{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 400,
		Message:    resp.Status,
		StatusCode: resp.StatusCode,
		LatencyMS:  latency,
		Attempts:   1,
	}
}
