package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"cronbot/internal/eventbus"
	"cronbot/internal/storage"
	"cronbot/internal/task/model"
	"cronbot/internal/task/schedule"
	logx "cronbot/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrNotFound    = errors.New("job not found")
	ErrNotStarted  = errors.New("scheduler not started")
	ErrInvalidJob  = errors.New("invalid job")
	ErrNoExecutor  = errors.New("no executor configured")
	ErrDuplicateID = errors.New("duplicate job id")
)

// Event types published on the bus.
const (
	EventJobExecuted = "job.executed"
	EventJobFailed   = "job.failed"
	EventJobRemoved  = "job.removed"
)

// Executor runs a due job. A nil error means success.
type Executor interface {
	Execute(ctx context.Context, job model.CronJob) error
}

// Clock is the scheduler's time source.
type Clock interface {
	Now() time.Time
}

// Timer is a pending delayed callback.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules delayed callbacks. The callback runs on its own
// goroutine and must not be invoked synchronously from AfterFunc.
type TimerFactory interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Options wires the service's collaborators. Store and Executor are required
// for useful work; everything else has a production default.
type Options struct {
	Store    storage.Store
	Executor Executor
	Engine   schedule.Engine
	Clock    Clock
	Timers   TimerFactory
	Log      logx.Logger
	Bus      eventbus.Bus

	// Timezone is applied to cron schedules created without one.
	Timezone string
}

// Patch is a sparse update. Nil fields are left untouched.
type Patch struct {
	Enabled  *bool
	Name     *string
	Schedule *model.Schedule
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Enabled == nil && p.Name == nil && p.Schedule == nil
}

// RunEvent is the payload of job events.
type RunEvent struct {
	JobID    string
	Name     string
	Status   model.Status
	Error    string
	RunAtMs  int64
	Duration time.Duration
	Removed  bool
}

// Snapshot is a point-in-time view for status surfaces.
type Snapshot struct {
	Started     bool
	Timezone    string
	Jobs        int
	EnabledJobs int
	NextWake    time.Time // zero when no timer is armed
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	store  storage.Store
	exec   Executor
	engine schedule.Engine
	calc   *schedule.Calculator
	clock  Clock
	timers TimerFactory
	bus    eventbus.Bus
	tz     string

	started bool
	runCtx  context.Context
	jobs    []model.CronJob

	// single timer; gen invalidates callbacks from timers that were replaced
	timer  Timer
	gen    uint64
	wakeAt *int64

	// passMu serializes fire passes and manual runs.
	passMu sync.Mutex

	// per-job throttle for repeated failure warnings
	failMu  sync.Mutex
	failLim map[string]*rate.Limiter
}
