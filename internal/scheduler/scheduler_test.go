package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/monitor"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/repo/memory"
)

// --- fakes ---

type fakeTicker struct {
	d       time.Duration
	next    time.Time
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{d: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves time forward and fires every ticker that came due. Like a
// real ticker, a tick is dropped when the previous one was not consumed.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.stopped.Load() {
			continue
		}
		for !t.next.After(c.now) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.d)
		}
	}
}

type fakeRunner struct {
	calls chan domain.MonitorID

	mu   sync.Mutex
	hook map[domain.MonitorID]func(ctx context.Context) error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		calls: make(chan domain.MonitorID, 64),
		hook:  map[domain.MonitorID]func(ctx context.Context) error{},
	}
}

func (r *fakeRunner) on(id domain.MonitorID, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook[id] = fn
}

func (r *fakeRunner) Run(ctx context.Context, m domain.Monitor) (monitor.Outcome, error) {
	defer func() { r.calls <- m.ID }()
	r.mu.Lock()
	fn := r.hook[m.ID]
	r.mu.Unlock()
	if fn != nil {
		if err := fn(ctx); err != nil {
			return monitor.Outcome{}, err
		}
	}
	return monitor.Outcome{Status: domain.StatusUp}, nil
}

func waitCalls(t *testing.T, ch <-chan domain.MonitorID, n int) map[domain.MonitorID]int {
	t.Helper()
	got := map[domain.MonitorID]int{}
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case id := <-ch:
			got[id]++
		case <-deadline:
			t.Fatalf("timed out after %d of %d calls: %v", i, n, got)
		}
	}
	return got
}

func expectNoCall(t *testing.T, ch <-chan domain.MonitorID) {
	t.Helper()
	select {
	case id := <-ch:
		t.Fatalf("unexpected cycle for monitor %d", id)
	case <-time.After(50 * time.Millisecond):
	}
}

// waitIdle blocks until no monitor has a cycle in flight.
func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		busy := false
		for _, running := range s.inflight {
			if running.Load() {
				busy = true
			}
		}
		s.mu.Unlock()
		if !busy {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("cycles still running")
		}
		time.Sleep(time.Millisecond)
	}
}

func mon(id int64, every int) domain.Monitor {
	return domain.Monitor{ID: domain.MonitorID(id), URL: "https://m.example", CheckIntervalSeconds: every, IsActive: true}
}

func newTestScheduler(t *testing.T, log *zap.Logger, r Runner, store repo.MonitorStore) (*Scheduler, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	if log == nil {
		log = zap.NewNop()
	}
	s := New(log, r, store, time.Second, clk)
	t.Cleanup(s.Stop)
	return s, clk
}

// --- tests ---

func TestRegister_IdempotentAndUnregister(t *testing.T) {
	s, _ := newTestScheduler(t, nil, newFakeRunner(), nil)

	if !s.Register(mon(2, 10)) || !s.Register(mon(1, 10)) {
		t.Fatal("first registration should succeed")
	}
	if s.Register(mon(1, 30)) {
		t.Fatal("second registration of the same id must be a no-op")
	}
	if s.Register(mon(3, 0)) {
		t.Fatal("non-positive interval must be rejected")
	}
	if got := s.Jobs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected jobs: %v", got)
	}

	if !s.Unregister(1) || s.Unregister(1) || s.Unregister(99) {
		t.Fatal("unregister should remove once and ignore unknown ids")
	}
	if got := s.Jobs(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("unexpected jobs after unregister: %v", got)
	}
}

func TestTicks_RunEachMonitorOnItsOwnInterval(t *testing.T) {
	r := newFakeRunner()
	s, clk := newTestScheduler(t, nil, r, nil)

	n := s.Start(context.Background(), []domain.Monitor{mon(1, 10), mon(2, 30)})
	if n != 2 {
		t.Fatalf("want 2 registered, got %d", n)
	}
	expectNoCall(t, r.calls) // no immediate cycle

	clk.Advance(10 * time.Second)
	if got := waitCalls(t, r.calls, 1); got[1] != 1 {
		t.Fatalf("want monitor 1 at 10s, got %v", got)
	}
	waitIdle(t, s)
	clk.Advance(10 * time.Second)
	waitCalls(t, r.calls, 1)
	waitIdle(t, s)
	clk.Advance(10 * time.Second)
	if got := waitCalls(t, r.calls, 2); got[1] != 1 || got[2] != 1 {
		t.Fatalf("want both monitors at 30s, got %v", got)
	}
}

func TestCycleFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := newFakeRunner()
	r.on(1, func(context.Context) error { panic("boom") })
	r.on(2, func(context.Context) error { return errors.New("db down") })
	s, clk := newTestScheduler(t, zap.New(core), r, nil)
	s.Start(context.Background(), []domain.Monitor{mon(1, 5), mon(2, 5), mon(3, 5)})

	clk.Advance(5 * time.Second)
	if got := waitCalls(t, r.calls, 3); len(got) != 3 {
		t.Fatalf("every monitor should run: %v", got)
	}
	waitIdle(t, s)

	// failing monitors keep their schedule too
	clk.Advance(5 * time.Second)
	if got := waitCalls(t, r.calls, 3); len(got) != 3 {
		t.Fatalf("every monitor should run again: %v", got)
	}

	if logs.FilterMessage("cycle_panic").Len() < 1 || logs.FilterMessage("cycle_failed").Len() < 1 {
		t.Fatal("panics and errors should be logged")
	}
}

func TestOverlappingCycleIsSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := newFakeRunner()
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	r.on(1, func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	})
	s, clk := newTestScheduler(t, zap.New(core), r, nil)
	s.Register(mon(1, 10))

	clk.Advance(10 * time.Second)
	<-started

	// the slow cycle is still running; a manual trigger is refused
	if err := s.Trigger(1); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("want ErrCycleRunning, got %v", err)
	}
	if logs.FilterMessage("cycle_skipped_overlap").Len() != 1 {
		t.Fatal("expected cycle_skipped_overlap log")
	}

	close(release)
	waitCalls(t, r.calls, 1)
	expectNoCall(t, r.calls)
	waitIdle(t, s)

	if err := s.Trigger(1); err != nil {
		t.Fatalf("trigger after completion: %v", err)
	}
	waitCalls(t, r.calls, 1)
}

func TestUnregisterStopsTicksButLetsCycleFinish(t *testing.T) {
	r := newFakeRunner()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	r.on(1, func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return nil
	})
	s, clk := newTestScheduler(t, nil, r, nil)
	s.Register(mon(1, 10))

	clk.Advance(10 * time.Second)
	<-started
	s.Unregister(1)
	close(release)
	waitCalls(t, r.calls, 1)
	if sawCancel.Load() {
		t.Fatal("in-flight cycle must not be cancelled by Unregister")
	}

	clk.Advance(time.Minute)
	expectNoCall(t, r.calls)
	if err := s.Trigger(1); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("want ErrJobNotFound, got %v", err)
	}
}

func TestStopWaitsForInFlightCycles(t *testing.T) {
	r := newFakeRunner()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	r.on(1, func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	})
	s, _ := newTestScheduler(t, nil, r, nil)
	s.Register(mon(1, 10))
	if err := s.Trigger(1); err != nil {
		t.Fatal(err)
	}
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if s.Register(mon(2, 10)) || len(s.Jobs()) != 0 {
		t.Fatal("a stopped scheduler accepts no jobs")
	}
}

func TestStopCancelsCyclesAfterGrace(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := newFakeRunner()
	started := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	r.on(1, func(ctx context.Context) error {
		started <- struct{}{}
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	})
	s, _ := newTestScheduler(t, zap.New(core), r, nil)
	s.SetStopGrace(20 * time.Millisecond)
	s.Register(mon(1, 10))
	if err := s.Trigger(1); err != nil {
		t.Fatal(err)
	}
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the hanging cycle")
	}
	if !sawCancel.Load() {
		t.Fatal("cycle context should be cancelled once the grace period ends")
	}
	if logs.FilterMessage("scheduler_stop_grace_expired").Len() != 1 {
		t.Fatal("expected scheduler_stop_grace_expired log")
	}
}

func TestLoopDropsTickAfterCancel(t *testing.T) {
	r := newFakeRunner()
	s, _ := newTestScheduler(t, nil, r, nil)

	// a tick and the cancellation are ready together; the tick must lose
	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		tk := &fakeTicker{d: time.Second, ch: make(chan time.Time, 1)}
		tk.ch <- time.Time{}
		s.wg.Add(1)
		s.loop(ctx, &job{mon: mon(1, 1), cancel: cancel, running: new(atomic.Bool)}, tk)
		if !tk.stopped.Load() {
			t.Fatal("loop should stop its ticker")
		}
	}
	expectNoCall(t, r.calls)
}

func TestStartStopsWithContext(t *testing.T) {
	s, _ := newTestScheduler(t, nil, newFakeRunner(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, []domain.Monitor{mon(1, 10)})

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Jobs()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not stop after ctx cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, m := range []domain.Monitor{mon(1, 10), mon(2, 10), mon(3, 10)} {
		_ = store.Upsert(ctx, m)
	}
	s, _ := newTestScheduler(t, nil, newFakeRunner(), store)
	active, _ := store.ListActive(ctx)
	s.Start(ctx, active)

	// 1 unchanged, 2 deactivated, 3 interval changed, 4 new
	m2 := mon(2, 10)
	m2.IsActive = false
	_ = store.Upsert(ctx, m2)
	_ = store.Upsert(ctx, mon(3, 20))
	_ = store.Upsert(ctx, mon(4, 10))

	res, err := s.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res != (ReconcileResult{Added: 1, Removed: 1, Updated: 1}) {
		t.Fatalf("unexpected result: %+v", res)
	}
	got := s.Jobs()
	if len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 4 {
		t.Fatalf("unexpected jobs: %v", got)
	}

	// a second pass is a no-op
	if res, _ := s.Reconcile(ctx); res != (ReconcileResult{}) {
		t.Fatalf("second reconcile should be a no-op: %+v", res)
	}
}

func TestReconcileKeepsOverlapGuard(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.Upsert(ctx, mon(7, 60))

	r := newFakeRunner()
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var inFlight, maxInFlight atomic.Int32
	r.on(7, func(context.Context) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		started <- struct{}{}
		<-release
		return nil
	})
	s, clk := newTestScheduler(t, nil, r, store)
	active, _ := store.ListActive(ctx)
	s.Start(ctx, active)

	if err := s.Trigger(7); err != nil {
		t.Fatal(err)
	}
	<-started

	// interval change re-registers the job while the cycle is blocked
	_ = store.Upsert(ctx, mon(7, 30))
	res, err := s.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("want 1 updated, got %+v", res)
	}

	if err := s.Trigger(7); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("want ErrCycleRunning after re-registration, got %v", err)
	}
	clk.Advance(30 * time.Second)
	expectNoCall(t, r.calls)

	close(release)
	waitCalls(t, r.calls, 1)
	waitIdle(t, s)
	if got := maxInFlight.Load(); got != 1 {
		t.Fatalf("cycles for monitor 7 overlapped: max in flight %d", got)
	}

	if err := s.Trigger(7); err != nil {
		t.Fatalf("trigger after completion: %v", err)
	}
	waitCalls(t, r.calls, 1)
}

func TestEvictor_RunOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clk := newFakeClock()
	now := clk.Now()
	_ = store.InsertCheck(ctx, &domain.CheckResult{MonitorID: 1, Status: domain.StatusUp, CheckedAt: now.Add(-48 * time.Hour)})
	_ = store.InsertCheck(ctx, &domain.CheckResult{MonitorID: 1, Status: domain.StatusUp, CheckedAt: now.Add(-time.Hour)})
	// monitor 2 was deactivated while DOWN long ago
	_ = store.InsertCheck(ctx, &domain.CheckResult{MonitorID: 2, Status: domain.StatusDown, CheckedAt: now.Add(-72 * time.Hour)})

	e := NewEvictor(nil, store, 24*time.Hour, time.Hour)
	e.Clock = clk
	e.runOnce(ctx)

	if n := len(store.Checks(1)); n != 1 {
		t.Fatalf("want 1 check left, got %d", n)
	}
	if st, _ := store.LastStatus(ctx, 2); st != domain.StatusDown {
		t.Fatalf("monitor 2 should keep its last DOWN, got %q", st)
	}
}
