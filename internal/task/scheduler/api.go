package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronbot/internal/task/model"
	logx "cronbot/pkg/logx"
)

// AddJob validates job, fills id/creation time/default zone, computes its
// first run, persists and re-arms. The stored copy is returned.
func (s *Service) AddJob(job model.CronJob) (model.CronJob, error) {
	job = job.Clone()
	job.Name = strings.TrimSpace(job.Name)
	job.ID = strings.TrimSpace(job.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return model.CronJob{}, ErrNotStarted
	}

	if job.Schedule.Kind == model.KindCron && strings.TrimSpace(job.Schedule.TZ) == "" {
		job.Schedule.TZ = s.tz
	}
	if err := s.validate(job.Name, job.Schedule); err != nil {
		return model.CronJob{}, err
	}
	if job.ID == "" {
		job.ID = s.freshIDLocked()
	} else if s.indexLocked(job.ID) >= 0 {
		return model.CronJob{}, fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}

	now := s.nowMs()
	if job.CreatedAtMs == 0 {
		job.CreatedAtMs = now
	}
	job.State = model.JobState{}
	if job.Enabled {
		job.State.NextRunAtMs = s.calc.Next(job.Schedule, now)
	}

	s.jobs = append(s.jobs, job)
	s.persistLocked()
	s.armLocked()

	s.log.Info("job added",
		logx.String("id", job.ID),
		logx.String("name", job.Name),
		logx.String("kind", string(job.Schedule.Kind)),
		logx.Any("next_run_at_ms", job.State.NextRunAtMs),
	)
	return job.Clone(), nil
}

// RemoveJob deletes a job by id and returns the removed copy.
func (s *Service) RemoveJob(id string) (model.CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return model.CronJob{}, ErrNotStarted
	}
	i := s.indexLocked(id)
	if i < 0 {
		return model.CronJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := s.jobs[i]
	s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	s.persistLocked()
	s.armLocked()
	s.dropFailLimiter(id)

	s.log.Info("job removed", logx.String("id", id), logx.String("name", removed.Name))
	s.publish(EventJobRemoved, RunEvent{JobID: id, Name: removed.Name, Removed: true})
	return removed, nil
}

// UpdateJob applies a sparse patch. The next run is recomputed when the
// schedule changes or the job is enabled; disabling leaves it untouched.
func (s *Service) UpdateJob(id string, p Patch) (model.CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return model.CronJob{}, ErrNotStarted
	}
	i := s.indexLocked(id)
	if i < 0 {
		return model.CronJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.Empty() {
		return s.jobs[i].Clone(), nil
	}

	job := s.jobs[i].Clone()
	recompute := false
	if p.Name != nil {
		job.Name = strings.TrimSpace(*p.Name)
	}
	if p.Schedule != nil {
		job.Schedule = *p.Schedule
		if job.Schedule.Kind == model.KindCron && strings.TrimSpace(job.Schedule.TZ) == "" {
			job.Schedule.TZ = s.tz
		}
		recompute = true
	}
	if p.Enabled != nil {
		job.Enabled = *p.Enabled
		if job.Enabled {
			recompute = true
		}
	}
	if err := s.validate(job.Name, job.Schedule); err != nil {
		return model.CronJob{}, err
	}
	if recompute && job.Enabled {
		job.State.NextRunAtMs = s.calc.Next(job.Schedule, s.nowMs())
	}

	s.jobs[i] = job
	s.persistLocked()
	s.armLocked()

	s.log.Info("job updated",
		logx.String("id", id),
		logx.Bool("enabled", job.Enabled),
		logx.Any("next_run_at_ms", job.State.NextRunAtMs),
	)
	return job.Clone(), nil
}

// GetJob returns a copy of the job with the given id.
func (s *Service) GetJob(id string) (model.CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.CronJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.jobs[i].Clone(), nil
}

// ListJobs returns copies of all jobs in collection order.
func (s *Service) ListJobs() []model.CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CronJob, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.Clone()
	}
	return out
}

// RunNow executes one job immediately, outside its schedule. State is
// recorded as for a timed run and one-shot jobs are removed afterwards.
// The returned error is the executor's. RunNow must not be called from
// inside an Executor.
func (s *Service) RunNow(ctx context.Context, id string) (model.CronJob, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return model.CronJob{}, ErrNotStarted
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return model.CronJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	job := s.jobs[i].Clone()
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	now := s.nowMs()
	runErr := s.execute(ctx, job)
	elapsed := time.Duration(max(0, s.nowMs()-now)) * time.Millisecond

	s.mu.Lock()
	defer s.mu.Unlock()
	out, removed, ok := s.recordLocked(job.ID, now, now, runErr)
	if !ok {
		return job, runErr
	}
	if removed {
		s.removeByIDLocked(job.ID)
	}
	s.persistLocked()
	s.armLocked()
	s.announce(out, now, elapsed, runErr, removed)
	return out, runErr
}

func (s *Service) validate(name string, sc model.Schedule) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidJob)
	}
	switch sc.Kind {
	case model.KindAt:
		if sc.AtMs <= 0 {
			return fmt.Errorf("%w: at schedule needs a time", ErrInvalidJob)
		}
	case model.KindEvery:
		if sc.EveryMs <= 0 {
			return fmt.Errorf("%w: interval must be positive", ErrInvalidJob)
		}
	case model.KindCron:
		if strings.TrimSpace(sc.Expr) == "" {
			return fmt.Errorf("%w: cron expression is required", ErrInvalidJob)
		}
		if err := s.engine.Validate(sc.Expr); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
		if _, err := s.engine.Next(sc.Expr, sc.TZ, s.clock.Now()); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
	default:
		return fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidJob, sc.Kind)
	}
	return nil
}

func (s *Service) freshIDLocked() string {
	for {
		id := model.NewID()
		if s.indexLocked(id) < 0 {
			return id
		}
	}
}

func (s *Service) removeByIDLocked(id string) {
	if i := s.indexLocked(id); i >= 0 {
		s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	}
}
