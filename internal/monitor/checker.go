// Package monitor runs one check cycle per call and acts on UP/DOWN
// transitions.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/notify"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

// CauseHTTPError is the down-alert cause when the target answered with a
// non-success status.
const CauseHTTPError = "HTTP error"

// Store is the subset of repo.Store a cycle writes to.
type Store interface {
	repo.CheckStore
	repo.IncidentStore
}

// Alerter is satisfied by *notify.Dispatcher.
type Alerter interface {
	NotifyDown(ctx context.Context, m domain.Monitor, cause string) notify.Results
	NotifyUp(ctx context.Context, m domain.Monitor, downtime time.Duration, known bool) notify.Results
}

// Outcome is what one cycle produced. Exactly one of LatencyMS and Error is
// set.
type Outcome struct {
	Status     domain.Status
	LatencyMS  *int64
	Error      string
	Attempts   int
	Transition domain.Transition
}

type Option func(*Checker)

// WithClock replaces time.Now for check timestamps and incident spans.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
		c.incidents.now = now
	}
}

// WithDNSDiagnosis replaces the resolver used to explain all-attempts-failed
// transitions. nil disables the diagnosis.
func WithDNSDiagnosis(fn func(ctx context.Context, host string) probe.DNSStatus) Option {
	return func(c *Checker) { c.dns = fn }
}

type Checker struct {
	log       *zap.Logger
	prober    probe.Checker
	checks    repo.CheckStore
	state     *StateTracker
	incidents *IncidentTracker
	alerts    Alerter
	now       func() time.Time
	dns       func(ctx context.Context, host string) probe.DNSStatus
}

// NewChecker wires a cycle runner. prober is expected to retry on its own
// (see probe.RetryChecker).
func NewChecker(log *zap.Logger, store Store, prober probe.Checker, alerts Alerter, opts ...Option) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Checker{
		log:       log,
		prober:    prober,
		checks:    store,
		state:     NewStateTracker(store),
		incidents: NewIncidentTracker(store),
		alerts:    alerts,
		now:       time.Now,
		dns:       probe.CheckDNS,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run executes one cycle for m. Probe failures never surface as errors;
// store failures do, and the cycle stops at the first one.
func (c *Checker) Run(ctx context.Context, m domain.Monitor) (Outcome, error) {
	log := c.log.With(
		zap.Int64("monitor_id", int64(m.ID)),
		zap.String("url", m.URL),
		zap.String("cycle_id", uuid.NewString()),
	)

	res := c.prober.Check(ctx, m.URL)
	checkedAt := c.now().UTC()

	out := Outcome{Attempts: res.Attempts}
	var cause string
	switch {
	case res.Responded():
		lat := int64(math.Round(res.LatencyMS))
		out.LatencyMS = &lat
		out.Status = domain.StatusDown
		if res.Success {
			out.Status = domain.StatusUp
		} else {
			cause = CauseHTTPError
		}
	default:
		out.Status = domain.StatusDown
		out.Error = res.Message
		if out.Error == "" {
			out.Error = "no response"
		}
		cause = out.Error
	}

	prev, err := c.state.Previous(ctx, m.ID)
	if err != nil {
		return out, err
	}

	row := &domain.CheckResult{
		MonitorID: m.ID,
		Status:    out.Status,
		LatencyMS: out.LatencyMS,
		CheckedAt: checkedAt,
	}
	if out.Error != "" {
		msg := out.Error
		row.ErrorMessage = &msg
	}
	if err := c.checks.InsertCheck(ctx, row); err != nil {
		return out, fmt.Errorf("persist check: %w", err)
	}

	out.Transition = domain.Transition{Previous: prev, Current: out.Status}
	switch {
	case out.Transition.WentDown():
		if err := c.wentDown(ctx, log, m, cause, !res.Responded()); err != nil {
			return out, err
		}
	case out.Transition.Recovered():
		if err := c.recovered(ctx, log, m); err != nil {
			return out, err
		}
	}

	fields := []zap.Field{
		zap.String("status", string(out.Status)),
		zap.String("previous", string(prev)),
		zap.Int("attempts", out.Attempts),
		zap.Int("http_status", res.StatusCode),
	}
	if out.LatencyMS != nil {
		fields = append(fields, zap.Int64("latency_ms", *out.LatencyMS))
	}
	if out.Error != "" {
		fields = append(fields, zap.String("error", out.Error))
	}
	log.Debug("cycle_done", fields...)
	return out, nil
}

func (c *Checker) wentDown(ctx context.Context, log *zap.Logger, m domain.Monitor, cause string, noResponse bool) error {
	inc, err := c.incidents.Open(ctx, m.ID)
	switch {
	case errors.Is(err, repo.ErrIncidentOpen):
		log.Warn("incident_already_open")
	case err != nil:
		return err
	default:
		log.Info("incident_opened", zap.Int64("incident_id", inc.ID), zap.Time("started_at", inc.StartedAt))
	}

	if noResponse && c.dns != nil {
		d := c.dns(ctx, probe.HostOf(m.URL))
		log.Info("dns_diagnosis",
			zap.String("host", d.Domain),
			zap.String("class", string(d.Class)),
			zap.String("resolver_error", d.ResolverError),
		)
	}

	c.alerts.NotifyDown(ctx, m, cause)
	return nil
}

func (c *Checker) recovered(ctx context.Context, log *zap.Logger, m domain.Monitor) error {
	downtime, ok, err := c.incidents.Close(ctx, m.ID)
	if err != nil {
		return err
	}
	if ok {
		log.Info("incident_closed", zap.Duration("downtime", downtime))
	} else {
		log.Warn("incident_missing_on_recovery")
	}
	c.alerts.NotifyUp(ctx, m, downtime, ok)
	return nil
}
