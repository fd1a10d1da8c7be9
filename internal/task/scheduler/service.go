package scheduler

import (
	"context"
	"strings"
	"time"

	"cronbot/internal/eventbus"
	"cronbot/internal/task/model"
	"cronbot/internal/task/schedule"
	logx "cronbot/pkg/logx"

	"golang.org/x/time/rate"
)

func New(opt Options) *Service {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	engine := opt.Engine
	if engine == nil {
		engine = schedule.NewRobfigEngine()
	}
	clock := opt.Clock
	if clock == nil {
		clock = SystemClock
	}
	timers := opt.Timers
	if timers == nil {
		timers = RuntimeTimers
	}
	tz := strings.TrimSpace(opt.Timezone)
	if tz == "" {
		tz = model.DefaultTimezone
	}
	return &Service{
		log:     log,
		store:   opt.Store,
		exec:    opt.Executor,
		engine:  engine,
		calc:    schedule.NewCalculator(engine, log),
		clock:   clock,
		timers:  timers,
		bus:     opt.Bus,
		tz:      tz,
		failLim: map[string]*rate.Limiter{},
	}
}

// Start loads the store, recomputes next runs for enabled jobs, persists and
// arms the timer. ctx is handed to executor calls; cancel it to abort
// in-flight executions on shutdown.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	var jobs []model.CronJob
	if s.store != nil {
		jobs = s.store.Load()
	}
	now := s.nowMs()
	for i := range jobs {
		if jobs[i].Enabled {
			jobs[i].State.NextRunAtMs = s.calc.Next(jobs[i].Schedule, now)
		}
	}
	s.jobs = jobs
	s.runCtx = ctx
	s.started = true

	s.persistLocked()
	s.armLocked()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.jobs)), logx.String("tz", s.tz))
	return nil
}

// Stop cancels the timer, waits until ctx is done for an in-flight fire pass
// or manual run to record its outcome, and persists the collection. It must
// not be called from inside an Executor with a ctx that never expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.armLocked() // clears the timer because started is false
	s.mu.Unlock()

	idle := s.waitIdle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked()
	if !idle {
		s.log.Warn("scheduler stopped with a run in progress", logx.Err(ctx.Err()))
	}
	s.log.Info("scheduler stopped", logx.Int("jobs", len(s.jobs)))
}

// waitIdle reports whether passMu was free before ctx ended. On timeout the
// lock is released by a helper goroutine once the running pass lets go.
func (s *Service) waitIdle(ctx context.Context) bool {
	acquired := make(chan struct{})
	go func() {
		s.passMu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		s.passMu.Unlock()
		return true
	case <-ctx.Done():
		go func() {
			<-acquired
			s.passMu.Unlock()
		}()
		return false
	}
}

// NextWake reports when the armed timer fires.
func (s *Service) NextWake() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wakeAt == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*s.wakeAt), true
}

// Timezone is the default zone for cron schedules created without one.
func (s *Service) Timezone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tz
}

// SetTimezone changes the default zone for schedules created from now on.
// Existing jobs keep the zone they were created with.
func (s *Service) SetTimezone(tz string) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return
	}
	s.mu.Lock()
	old := s.tz
	s.tz = tz
	s.mu.Unlock()
	if old != tz {
		s.log.Info("scheduler timezone changed", logx.String("from", old), logx.String("to", tz))
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Started: s.started, Timezone: s.tz, Jobs: len(s.jobs)}
	for _, j := range s.jobs {
		if j.Enabled {
			snap.EnabledJobs++
		}
	}
	if s.wakeAt != nil {
		snap.NextWake = time.UnixMilli(*s.wakeAt)
	}
	return snap
}

func (s *Service) nowMs() int64 { return s.clock.Now().UnixMilli() }

// armLocked replaces the timer with one for the earliest pending run.
// Call with s.mu held.
func (s *Service) armLocked() {
	if s.timer != nil {
		_ = s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.wakeAt = nil
	if !s.started {
		return
	}

	earliest, ok := s.earliestLocked()
	if !ok {
		s.log.Debug("no jobs scheduled")
		return
	}
	delay := time.Duration(max(0, earliest-s.nowMs())) * time.Millisecond
	gen := s.gen
	s.timer = s.timers.AfterFunc(delay, func() { s.onTimer(gen) })
	s.wakeAt = &earliest
	s.log.Debug("timer armed", logx.Time("at", time.UnixMilli(earliest)), logx.Duration("in", delay))
}

// earliestLocked returns the minimum next run over enabled jobs.
func (s *Service) earliestLocked() (int64, bool) {
	var (
		best  int64
		found bool
	)
	for _, j := range s.jobs {
		if !j.Enabled || j.State.NextRunAtMs == nil {
			continue
		}
		if !found || *j.State.NextRunAtMs < best {
			best = *j.State.NextRunAtMs
			found = true
		}
	}
	return best, found
}

// persistLocked writes the full collection. Failures are logged and the
// in-memory state is kept; the next mutation retries.
func (s *Service) persistLocked() {
	if s.store == nil {
		return
	}
	snapshot := make([]model.CronJob, len(s.jobs))
	for i, j := range s.jobs {
		snapshot[i] = j.Clone()
	}
	if err := s.store.Save(snapshot); err != nil {
		s.log.Error("store save failed", logx.Int("jobs", len(snapshot)), logx.Err(err))
	}
}

func (s *Service) indexLocked(id string) int {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) publish(typ string, ev RunEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
