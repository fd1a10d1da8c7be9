package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"cronbot/internal/task/model"
	logx "cronbot/pkg/logx"
)

// onTimer runs one fire pass. gen identifies the timer that scheduled it;
// callbacks from replaced timers are ignored.
func (s *Service) onTimer(gen uint64) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	s.mu.Lock()
	if !s.started || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.wakeAt = nil

	now := s.nowMs()
	due := s.dueLocked(now)
	ctx := s.runCtx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	s.log.Debug("fire pass", logx.Int("due", len(due)), logx.Int64("now_ms", now))

	var removals []string
	type outcome struct {
		job     model.CronJob
		runAt   int64
		elapsed time.Duration
		err     error
		removed bool
	}
	outcomes := make([]outcome, 0, len(due))

	for _, job := range due {
		s.log.Info("executing job", logx.String("id", job.ID), logx.String("name", job.Name))
		runAt := s.nowMs()
		runErr := s.execute(ctx, job)
		elapsed := time.Duration(max(0, s.nowMs()-runAt)) * time.Millisecond

		s.mu.Lock()
		out, remove, ok := s.recordLocked(job.ID, runAt, now, runErr)
		s.mu.Unlock()
		if !ok {
			s.log.Debug("job removed during execution", logx.String("id", job.ID))
			continue
		}
		if remove {
			removals = append(removals, job.ID)
		}
		outcomes = append(outcomes, outcome{job: out, runAt: runAt, elapsed: elapsed, err: runErr, removed: remove})
	}

	s.mu.Lock()
	for _, id := range removals {
		s.removeByIDLocked(id)
	}
	s.persistLocked()
	s.armLocked()
	s.mu.Unlock()

	for _, o := range outcomes {
		s.announce(o.job, o.runAt, o.elapsed, o.err, o.removed)
	}
}

// dueLocked returns copies of enabled jobs whose next run is at or before
// now, ordered by next run. Ties keep collection order.
func (s *Service) dueLocked(now int64) []model.CronJob {
	var due []model.CronJob
	for _, j := range s.jobs {
		if j.Due(now) {
			due = append(due, j.Clone())
		}
	}
	slices.SortStableFunc(due, func(a, b model.CronJob) int {
		return cmp.Compare(*a.State.NextRunAtMs, *b.State.NextRunAtMs)
	})
	return due
}

// execute calls the executor, converting a panic into an error.
func (s *Service) execute(ctx context.Context, job model.CronJob) (err error) {
	if s.exec == nil {
		s.log.Warn("no executor set, skipping job", logx.String("id", job.ID))
		return ErrNoExecutor
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("executor panic",
				logx.String("id", job.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return s.exec.Execute(ctx, job)
}

// recordLocked stores the outcome of a run on the live job. ok is false
// when the job no longer exists. remove reports a one-shot job that should
// be dropped; otherwise the next run is recomputed from nextFrom.
func (s *Service) recordLocked(id string, runAt, nextFrom int64, runErr error) (job model.CronJob, remove bool, ok bool) {
	i := s.indexLocked(id)
	if i < 0 {
		return model.CronJob{}, false, false
	}
	j := &s.jobs[i]
	j.State.LastRunAtMs = model.Ptr(runAt)
	if runErr != nil {
		j.State.LastStatus = model.Ptr(model.StatusError)
		j.State.LastError = model.Ptr(runErr.Error())
	} else {
		j.State.LastStatus = model.Ptr(model.StatusOK)
		j.State.LastError = nil
	}

	if j.DeleteAfterRun {
		return j.Clone(), true, true
	}
	if j.Enabled {
		j.State.NextRunAtMs = s.calc.Next(j.Schedule, nextFrom)
	}
	return j.Clone(), false, true
}

// announce logs and publishes the outcome of one run.
func (s *Service) announce(job model.CronJob, runAt int64, elapsed time.Duration, runErr error, removed bool) {
	ev := RunEvent{
		JobID:    job.ID,
		Name:     job.Name,
		Status:   model.StatusOK,
		RunAtMs:  runAt,
		Duration: elapsed,
		Removed:  removed,
	}
	if runErr != nil {
		ev.Status = model.StatusError
		ev.Error = runErr.Error()
		s.reportFailure(job, runErr)
		s.publish(EventJobFailed, ev)
	} else {
		s.log.Info("job executed", logx.String("id", job.ID), logx.Time("run_at", time.UnixMilli(runAt)), logx.Duration("took", elapsed))
		s.publish(EventJobExecuted, ev)
	}
	if removed {
		s.dropFailLimiter(job.ID)
		s.log.Info("one-shot job removed", logx.String("id", job.ID), logx.String("name", job.Name))
		s.publish(EventJobRemoved, ev)
	}
}
