package scheduler

import (
	"time"

	"cronbot/internal/task/model"
	logx "cronbot/pkg/logx"

	"golang.org/x/time/rate"
)

// A job that keeps failing logs one warning per failureWarnEvery; the rest
// go to debug.
const (
	failureWarnEvery = 10 * time.Minute
	failureWarnBurst = 1
)

func (s *Service) reportFailure(job model.CronJob, err error) {
	fields := []logx.Field{
		logx.String("id", job.ID),
		logx.String("name", job.Name),
		logx.Err(err),
	}
	if job.State.NextRunAtMs != nil {
		fields = append(fields, logx.Time("next_run", time.UnixMilli(*job.State.NextRunAtMs)))
	}
	if s.failLimiter(job.ID).Allow() {
		s.log.Warn("job failed", fields...)
		return
	}
	s.log.Debug("job failed (throttled)", fields...)
}

func (s *Service) failLimiter(id string) *rate.Limiter {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	lim, ok := s.failLim[id]
	if !ok {
		lim = rate.NewLimiter(rate.Every(failureWarnEvery), failureWarnBurst)
		s.failLim[id] = lim
	}
	return lim
}

func (s *Service) dropFailLimiter(id string) {
	s.failMu.Lock()
	delete(s.failLim, id)
	s.failMu.Unlock()
}
