package jobapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cronbot/internal/task/model"
	"cronbot/internal/task/schedule"
	"cronbot/internal/task/scheduler"
	"cronbot/internal/task/timeparse"
	logx "cronbot/pkg/logx"
)

// Schedule types accepted by Add.
const (
	TypeAt    = "at"
	TypeEvery = "every"
	TypeDaily = "daily"
	TypeCron  = "cron"
)

// Scheduler is the subset of *scheduler.Service the API drives.
type Scheduler interface {
	AddJob(job model.CronJob) (model.CronJob, error)
	RemoveJob(id string) (model.CronJob, error)
	UpdateJob(id string, p scheduler.Patch) (model.CronJob, error)
	GetJob(id string) (model.CronJob, error)
	ListJobs() []model.CronJob
	RunNow(ctx context.Context, id string) (model.CronJob, error)
}

type Options struct {
	Scheduler Scheduler
	Engine    schedule.Engine
	Location  *time.Location
	Now       func() time.Time
	Log       logx.Logger
}

type API struct {
	svc    Scheduler
	engine schedule.Engine
	now    func() time.Time
	log    logx.Logger

	mu  sync.RWMutex
	loc *time.Location
}

func New(opt Options) *API {
	engine := opt.Engine
	if engine == nil {
		engine = schedule.NewRobfigEngine()
	}
	loc := opt.Location
	if loc == nil {
		loc = defaultLocation()
	}
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &API{svc: opt.Scheduler, engine: engine, now: now, log: log, loc: loc}
}

func defaultLocation() *time.Location {
	loc, err := time.LoadLocation(model.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Location is the zone used for parsing and rendering.
func (a *API) Location() *time.Location {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loc
}

// SetLocation swaps the zone on config reload.
func (a *API) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	a.mu.Lock()
	a.loc = loc
	a.mu.Unlock()
}

func (a *API) parser() *timeparse.Parser {
	return &timeparse.Parser{Location: a.Location(), Now: a.now}
}

// List renders every job with its schedule, state and next run.
func (a *API) List() string {
	jobs := a.svc.ListJobs()
	if len(jobs) == 0 {
		return "No reminders scheduled"
	}
	loc := a.Location()

	var b strings.Builder
	b.WriteString("Scheduled reminders:")
	for _, j := range jobs {
		status := "off"
		if j.Enabled {
			status = "on"
		}
		fmt.Fprintf(&b, "\n- [%s] %s | %s | %s", j.ID, j.Name, schedule.Describe(j.Schedule, loc), status)
		if j.State.NextRunAtMs != nil {
			next := time.UnixMilli(*j.State.NextRunAtMs).In(loc)
			fmt.Fprintf(&b, " (next: %s)", next.Format(schedule.DisplayLayout))
		}
	}
	return b.String()
}

// Add creates a job. scheduleType "at" always deletes the job after its run.
func (a *API) Add(name, prompt, scheduleType, scheduleValue string, deleteAfterRun bool) string {
	sc, msg := a.buildSchedule(scheduleType, scheduleValue)
	if msg != "" {
		a.log.Debug("add rejected", logx.String("type", scheduleType), logx.String("value", scheduleValue))
		return msg
	}
	if sc.Kind == model.KindAt {
		deleteAfterRun = true
	}

	job, err := a.svc.AddJob(model.CronJob{
		Name:           name,
		Prompt:         prompt,
		Schedule:       sc,
		Enabled:        true,
		DeleteAfterRun: deleteAfterRun,
	})
	if err != nil {
		return fmt.Sprintf("Couldn't create reminder '%s': %v", name, err)
	}
	return fmt.Sprintf("Created reminder '%s' (%s)", job.Name, schedule.Describe(job.Schedule, a.Location()))
}

func (a *API) buildSchedule(scheduleType, value string) (model.Schedule, string) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(scheduleType)) {
	case TypeAt:
		at, err := a.parser().ParseAt(value)
		if errors.Is(err, timeparse.ErrPast) {
			return model.Schedule{}, fmt.Sprintf("Time '%s' has already passed. Pick a future time", value)
		}
		if err != nil {
			return model.Schedule{}, fmt.Sprintf("Couldn't parse time '%s'. Try '2h', 'tomorrow 6pm', 'in 30 minutes'", value)
		}
		return model.At(at), ""
	case TypeEvery:
		d, err := timeparse.ParseInterval(value)
		if err != nil {
			return model.Schedule{}, fmt.Sprintf("Couldn't parse interval '%s'. Try '2h', '30m', '1d'", value)
		}
		return model.Every(d), ""
	case TypeDaily:
		expr, err := timeparse.ParseDaily(value)
		if err != nil {
			return model.Schedule{}, fmt.Sprintf("Couldn't parse time '%s'. Try '8am', '10:30am', '18:00'", value)
		}
		return model.Cron(expr, a.Location().String()), ""
	case TypeCron:
		if err := a.engine.Validate(value); err != nil {
			return model.Schedule{}, fmt.Sprintf("Invalid cron expression '%s'. Use 5 fields: minute hour day-of-month month day-of-week", value)
		}
		return model.Cron(value, a.Location().String()), ""
	default:
		return model.Schedule{}, fmt.Sprintf("Unknown schedule type: %s", scheduleType)
	}
}

// Remove deletes a job by id.
func (a *API) Remove(id string) string {
	job, err := a.svc.RemoveJob(strings.TrimSpace(id))
	if errors.Is(err, scheduler.ErrNotFound) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Sprintf("Failed to remove job '%s': %v", id, err)
	}
	return fmt.Sprintf("Removed reminder '%s'", job.Name)
}

// Update toggles and/or renames a job. Nil arguments are left untouched.
func (a *API) Update(id string, enabled *bool, name *string) string {
	id = strings.TrimSpace(id)
	if _, err := a.svc.GetJob(id); err != nil {
		return notFound(id)
	}
	if enabled == nil && name == nil {
		return "Nothing to update"
	}
	job, err := a.svc.UpdateJob(id, scheduler.Patch{Enabled: enabled, Name: name})
	if errors.Is(err, scheduler.ErrNotFound) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Sprintf("Failed to update job '%s': %v", id, err)
	}
	status := "disabled"
	if job.Enabled {
		status = "enabled"
	}
	return fmt.Sprintf("Updated '%s' (%s)", job.Name, status)
}

// Run triggers a job immediately.
func (a *API) Run(ctx context.Context, id string) string {
	id = strings.TrimSpace(id)
	job, err := a.svc.RunNow(ctx, id)
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		return notFound(id)
	case errors.Is(err, scheduler.ErrNotStarted):
		return "Scheduler not running"
	case err != nil:
		if job.ID == "" {
			return fmt.Sprintf("Failed to run job '%s': %v", id, err)
		}
		return fmt.Sprintf("Ran '%s' (error: %v)", job.Name, err)
	}
	return fmt.Sprintf("Ran '%s' (ok)", job.Name)
}

// Grammar documents the accepted schedule values.
func (a *API) Grammar() string {
	return grammarText
}

const grammarText = `Schedule types and values:
  at     one-shot, removed after it runs
         "2h", "30m", "1d", "45s", "in 30 minutes", "in 2 hours",
         "tomorrow", "tomorrow 6pm", "tomorrow at 6:30pm", "today 18:00",
         "2026-01-02 15:04", RFC 3339
  every  repeating interval aligned to the epoch
         "2h", "30m", "1d", "90s"
  daily  fixed clock time every day
         "8am", "10:30am", "18:00"
  cron   5-field expression: minute hour day-of-month month day-of-week
         "0 9 * * 1-5"
Times without a zone use the scheduler timezone. 12-hour times need am/pm.`

func notFound(id string) string {
	return fmt.Sprintf("No job found with ID '%s'", id)
}
