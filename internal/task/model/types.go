package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimezone is used for cron evaluation and human-time parsing when no
// zone is configured.
const DefaultTimezone = "Asia/Kolkata"

// Kind describes how a job recurs.
type Kind string

const (
	KindAt    Kind = "at"    // one-shot at an absolute time
	KindEvery Kind = "every" // fixed interval, epoch aligned
	KindCron  Kind = "cron"  // 5-field cron expression
)

// Status is the outcome of the last execution.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Schedule describes when a job runs. Only the field matching Kind is meaningful.
type Schedule struct {
	Kind    Kind   `json:"kind"`
	AtMs    int64  `json:"at_ms,omitempty"`
	EveryMs int64  `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

// At returns a one-shot schedule.
func At(t time.Time) Schedule { return Schedule{Kind: KindAt, AtMs: t.UnixMilli()} }

// Every returns an interval schedule.
func Every(d time.Duration) Schedule { return Schedule{Kind: KindEvery, EveryMs: d.Milliseconds()} }

// Cron returns a cron schedule evaluated in tz (DefaultTimezone when empty).
func Cron(expr, tz string) Schedule {
	return Schedule{Kind: KindCron, Expr: strings.TrimSpace(expr), TZ: tz}
}

// Location returns the schedule's zone name, falling back to DefaultTimezone.
func (s Schedule) Location() string {
	if tz := strings.TrimSpace(s.TZ); tz != "" {
		return tz
	}
	return DefaultTimezone
}

// JobState is the runtime status of a job. It is owned by the scheduler.
// A nil NextRunAtMs means the job will not run again.
type JobState struct {
	NextRunAtMs *int64  `json:"next_run_at_ms"`
	LastRunAtMs *int64  `json:"last_run_at_ms"`
	LastStatus  *Status `json:"last_status"`
	LastError   *string `json:"last_error"`
}

// CronJob is the unit of schedulable work.
type CronJob struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Prompt         string   `json:"prompt"`
	Schedule       Schedule `json:"schedule"`
	Enabled        bool     `json:"enabled"`
	DeleteAfterRun bool     `json:"delete_after_run"`
	CreatedAtMs    int64    `json:"created_at_ms"`
	State          JobState `json:"state"`
}

// NewID returns a short random job identifier (8 hex chars).
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Due reports whether the job should run at nowMs.
func (j CronJob) Due(nowMs int64) bool {
	return j.Enabled && j.State.NextRunAtMs != nil && *j.State.NextRunAtMs <= nowMs
}

// Clone returns a deep copy so callers can't mutate scheduler-owned state.
func (j CronJob) Clone() CronJob {
	cp := j
	cp.State = JobState{
		NextRunAtMs: cloneInt64(j.State.NextRunAtMs),
		LastRunAtMs: cloneInt64(j.State.LastRunAtMs),
	}
	if j.State.LastStatus != nil {
		st := *j.State.LastStatus
		cp.State.LastStatus = &st
	}
	if j.State.LastError != nil {
		msg := *j.State.LastError
		cp.State.LastError = &msg
	}
	return cp
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. Handy for the nullable state fields.
func Ptr[T any](v T) *T { return &v }
