package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cronbot/internal/eventbus"
	"cronbot/internal/task/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) SetMs(ms int64) {
	c.mu.Lock()
	c.now = time.UnixMilli(ms)
	c.mu.Unlock()
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fakeTimers records every armed timer; tests fire them explicitly.
type fakeTimers struct {
	mu  sync.Mutex
	all []*fakeTimer
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	ft.mu.Lock()
	ft.all = append(ft.all, t)
	ft.mu.Unlock()
	return t
}

func (ft *fakeTimers) Last(t *testing.T) *fakeTimer {
	t.Helper()
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.all) == 0 {
		t.Fatalf("no timer armed")
	}
	return ft.all[len(ft.all)-1]
}

func (ft *fakeTimers) Count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.all)
}

type memStore struct {
	mu    sync.Mutex
	jobs  []model.CronJob
	saves int
	err   error
}

func (m *memStore) Load() []model.CronJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CronJob, len(m.jobs))
	for i, j := range m.jobs {
		out[i] = j.Clone()
	}
	return out
}

func (m *memStore) Save(jobs []model.CronJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.jobs = jobs
	return nil
}

func (m *memStore) Saved() []model.CronJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs
}

type recordingExec struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, job model.CronJob) error
}

func (e *recordingExec) Execute(ctx context.Context, job model.CronJob) error {
	e.mu.Lock()
	e.calls = append(e.calls, job.Name)
	fn := e.fn
	e.mu.Unlock()
	if fn != nil {
		return fn(ctx, job)
	}
	return nil
}

func (e *recordingExec) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

var errBoom = errors.New("boom")

type harness struct {
	svc    *Service
	clock  *fakeClock
	timers *fakeTimers
	store  *memStore
	exec   *recordingExec
	bus    eventbus.Bus
}

func newHarness(t *testing.T, nowMs int64, seed ...model.CronJob) *harness {
	t.Helper()
	h := &harness{
		clock:  &fakeClock{now: time.UnixMilli(nowMs)},
		timers: &fakeTimers{},
		store:  &memStore{jobs: seed},
		exec:   &recordingExec{},
		bus:    eventbus.New(),
	}
	h.svc = New(Options{
		Store:    h.store,
		Executor: h.exec,
		Clock:    h.clock,
		Timers:   h.timers,
		Bus:      h.bus,
		Timezone: "UTC",
	})
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { h.svc.Stop(context.Background()) })
	return h
}

// fire advances the clock and runs the currently armed timer callback.
func (h *harness) fire(t *testing.T, atMs int64) {
	t.Helper()
	h.clock.SetMs(atMs)
	h.timers.Last(t).f()
}

func (h *harness) add(t *testing.T, job model.CronJob) model.CronJob {
	t.Helper()
	out, err := h.svc.AddJob(job)
	if err != nil {
		t.Fatalf("AddJob(%s): %v", job.Name, err)
	}
	return out
}

func wakeMs(t *testing.T, s *Service) (int64, bool) {
	t.Helper()
	at, ok := s.NextWake()
	if !ok {
		return 0, false
	}
	return at.UnixMilli(), true
}
