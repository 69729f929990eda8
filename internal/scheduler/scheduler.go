// Package scheduler owns one periodic trigger per active monitor and runs
// check cycles on it. A failing or hanging cycle only affects its own monitor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/monitor"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

var (
	ErrJobNotFound  = errors.New("no job for monitor")
	ErrCycleRunning = errors.New("cycle already running")
	ErrStopped      = errors.New("scheduler stopped")
)

// Runner executes one check cycle. *monitor.Checker implements it.
type Runner interface {
	Run(ctx context.Context, m domain.Monitor) (monitor.Outcome, error)
}

type job struct {
	mon    domain.Monitor
	cancel context.CancelFunc
	// shared by every job registered for mon.ID
	running *atomic.Bool
}

type Scheduler struct {
	log          *zap.Logger
	runner       Runner
	monitors     repo.MonitorStore
	clock        Clock
	cycleTimeout time.Duration
	stopGrace    time.Duration

	root       context.Context
	cancelRoot context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	jobs     map[domain.MonitorID]*job
	inflight map[domain.MonitorID]*atomic.Bool
	stopped  bool
}

// DefaultStopGrace is how long Stop lets in-flight cycles run before
// cancelling them.
const DefaultStopGrace = 10 * time.Second

func New(
	logger *zap.Logger,
	runner Runner,
	monitors repo.MonitorStore,
	cycleTimeout time.Duration,
	clock Clock,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cycleTimeout <= 0 {
		cycleTimeout = 60 * time.Second
	}
	if clock == nil {
		clock = RealClock()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:          logger,
		runner:       runner,
		monitors:     monitors,
		clock:        clock,
		cycleTimeout: cycleTimeout,
		stopGrace:    DefaultStopGrace,
		root:         root,
		cancelRoot:   cancel,
		jobs:         make(map[domain.MonitorID]*job),
		inflight:     make(map[domain.MonitorID]*atomic.Bool),
	}
}

// SetStopGrace changes how long Stop waits before cancelling in-flight
// cycles. Non-positive values cancel them immediately.
func (s *Scheduler) SetStopGrace(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopGrace = d
}

// Start registers the initial active set and returns how many were
// registered. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, monitors []domain.Monitor) int {
	n := 0
	for _, m := range monitors {
		if s.Register(m) {
			n++
		}
	}
	s.log.Info("scheduler_started", zap.Int("registered", n), zap.Int("given", len(monitors)))

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.root.Done():
		}
	}()
	return n
}

// Register starts a periodic trigger for m. It is a no-op returning false
// when m is already registered or has no usable interval, and after Stop.
// The first cycle runs one interval after registration.
func (s *Scheduler) Register(m domain.Monitor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked(m)
}

func (s *Scheduler) registerLocked(m domain.Monitor) bool {
	if s.stopped {
		return false
	}
	if _, ok := s.jobs[m.ID]; ok {
		return false
	}
	interval := m.Interval()
	if interval <= 0 {
		s.log.Warn("monitor_invalid_interval",
			zap.Int64("monitor_id", int64(m.ID)),
			zap.Int("check_interval_seconds", m.CheckIntervalSeconds),
		)
		return false
	}

	running, ok := s.inflight[m.ID]
	if !ok {
		running = new(atomic.Bool)
		s.inflight[m.ID] = running
	}

	ctx, cancel := context.WithCancel(s.root)
	j := &job{mon: m, cancel: cancel, running: running}
	s.jobs[m.ID] = j

	t := s.clock.NewTicker(interval)
	s.wg.Add(1)
	go s.loop(ctx, j, t)

	s.log.Info("monitor_registered",
		zap.Int64("monitor_id", int64(m.ID)),
		zap.String("url", m.URL),
		zap.Duration("interval", interval),
	)
	return true
}

// Unregister cancels the trigger for id. An in-flight cycle is left to
// finish and still blocks new cycles for id if it is registered again.
// It returns false when id was not registered.
func (s *Scheduler) Unregister(id domain.MonitorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unregisterLocked(id)
}

func (s *Scheduler) unregisterLocked(id domain.MonitorID) bool {
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	delete(s.jobs, id)
	j.cancel()
	s.log.Info("monitor_unregistered", zap.Int64("monitor_id", int64(id)))
	return true
}

// Trigger runs one cycle for id now, outside the regular schedule.
func (s *Scheduler) Trigger(id domain.MonitorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !s.fire(j) {
		return ErrCycleRunning
	}
	return nil
}

// Jobs returns the registered monitor ids in ascending order.
func (s *Scheduler) Jobs() []domain.MonitorID {
	s.mu.Lock()
	ids := make([]domain.MonitorID, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })
	return ids
}

type ReconcileResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Updated int `json:"updated"`
}

// Reconcile brings the registry in line with the store's active set.
// Monitors whose settings changed are re-registered.
func (s *Scheduler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	if s.monitors == nil {
		return res, errors.New("reconcile: no monitor store")
	}
	active, err := s.monitors.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("reconcile: list active: %w", err)
	}
	want := make(map[domain.MonitorID]domain.Monitor, len(active))
	for _, m := range active {
		want[m.ID] = m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return res, ErrStopped
	}

	for id, j := range s.jobs {
		m, ok := want[id]
		switch {
		case !ok:
			s.unregisterLocked(id)
			res.Removed++
		case m != j.mon:
			s.unregisterLocked(id)
			if s.registerLocked(m) {
				res.Updated++
			} else {
				res.Removed++
			}
		}
	}
	for id, m := range want {
		if _, ok := s.jobs[id]; ok {
			continue
		}
		if s.registerLocked(m) {
			res.Added++
		}
	}

	s.log.Info("scheduler_reconciled",
		zap.Int("added", res.Added),
		zap.Int("removed", res.Removed),
		zap.Int("updated", res.Updated),
		zap.Int("jobs", len(s.jobs)),
	)
	return res, nil
}

// Stop cancels every trigger and waits for in-flight cycles. Cycles still
// running after the stop grace period have their context cancelled. Safe
// to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, j := range s.jobs {
		j.cancel()
		delete(s.jobs, id)
	}
	grace := s.stopGrace
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(max(grace, 0))
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.log.Warn("scheduler_stop_grace_expired", zap.Duration("grace", grace))
		s.cancelRoot()
		<-done
	}
	s.cancelRoot()
	s.log.Info("scheduler_stopped")
}

func (s *Scheduler) loop(ctx context.Context, j *job, t Ticker) {
	defer s.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			// both cases may be ready at once
			if ctx.Err() != nil {
				return
			}
			s.fire(j)
		}
	}
}

// fire starts a cycle unless one is already running for the same monitor.
// The caller must be the job's loop or hold s.mu.
func (s *Scheduler) fire(j *job) bool {
	if !j.running.CompareAndSwap(false, true) {
		s.log.Warn("cycle_skipped_overlap", zap.Int64("monitor_id", int64(j.mon.ID)))
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer j.running.Store(false)
		s.cycle(j.mon)
	}()
	return true
}

func (s *Scheduler) cycle(m domain.Monitor) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cycle_panic",
				zap.Int64("monitor_id", int64(m.ID)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	// in-flight cycles outlive Unregister; the timeout or Stop's grace period ends them
	ctx, cancel := context.WithTimeout(s.root, s.cycleTimeout)
	defer cancel()

	start := s.clock.Now()
	out, err := s.runner.Run(ctx, m)
	if err != nil {
		s.log.Error("cycle_failed",
			zap.Int64("monitor_id", int64(m.ID)),
			zap.String("url", m.URL),
			zap.Duration("elapsed", s.clock.Now().Sub(start)),
			zap.Error(err),
		)
		return
	}
	if out.Transition.Changed() {
		s.log.Info("status_changed",
			zap.Int64("monitor_id", int64(m.ID)),
			zap.String("url", m.URL),
			zap.String("from", string(out.Transition.Previous)),
			zap.String("to", string(out.Transition.Current)),
		)
	}
}
