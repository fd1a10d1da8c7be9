// Package app wires config, logging, the notifier, the executor, the
// scheduler and the HTTP surface into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cronbot/internal/config"
	"cronbot/internal/eventbus"
	"cronbot/internal/httpapi"
	"cronbot/internal/metrics"
	"cronbot/internal/notifier"
	"cronbot/internal/runtime/supervisor"
	"cronbot/internal/storage"
	"cronbot/internal/task/jobapi"
	"cronbot/internal/task/schedule"
	"cronbot/internal/task/scheduler"
	logx "cronbot/pkg/logx"
	"cronbot/pkg/systemd"
)

type App struct {
	cfgm  *config.Manager // nil when running on defaults
	cfgMu sync.RWMutex
	cfg   *config.Config

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *storage.File
	notif *notifier.Service
	sched *scheduler.Service
	api   *jobapi.API
	http  *httpapi.Server
	mets  *metrics.Metrics

	sup *supervisor.Supervisor
}

// New builds the app from the config file at cfgPath, or from defaults
// when cfgPath is empty.
func New(cfgPath string) (*App, error) {
	var (
		cfgm *config.Manager
		cfg  *config.Config
	)
	if cfgPath == "" {
		cfg = config.Default()
	} else {
		cfgm = config.NewManager(cfgPath)
		c, err := cfgm.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	return build(cfgm, cfg)
}

func build(cfgm *config.Manager, cfg *config.Config) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// Start with the notify sink off; it is switched on once the notifier
	// exists so logx never sees an enabled sink without a sender.
	bootCfg := logConfig(cfg)
	bootCfg.Notify.Enabled = false
	logs, root := logx.NewService(bootCfg)
	log := root.With(logx.String("comp", "app"))
	if cfgm != nil {
		cfgm.SetLogger(root.With(logx.String("comp", "config")))
	}

	bus := eventbus.New()

	sender, err := buildSender(cfg, root.With(logx.String("comp", "notify")))
	if err != nil {
		return nil, err
	}
	notif := notifier.New(notifierConfig(cfg), sender, root.With(logx.String("comp", "notifier")), bus)
	logs.SetSender(notif)
	logs.Apply(logConfig(cfg))

	exec, err := buildExecutor(cfg, notif, loc, root.With(logx.String("comp", "executor")))
	if err != nil {
		return nil, err
	}

	engine := schedule.NewRobfigEngine()
	store := storage.NewFile(cfg.Scheduler.StorePath, root.With(logx.String("comp", "storage")))
	sched := scheduler.New(scheduler.Options{
		Store:    store,
		Executor: exec,
		Engine:   engine,
		Log:      root.With(logx.String("comp", "scheduler")),
		Bus:      bus,
		Timezone: loc.String(),
	})
	api := jobapi.New(jobapi.Options{
		Scheduler: sched,
		Engine:    engine,
		Location:  loc,
		Log:       root.With(logx.String("comp", "jobapi")),
	})

	a := &App{
		cfgm:  cfgm,
		cfg:   cfg,
		log:   log,
		logs:  logs,
		bus:   bus,
		store: store,
		notif: notif,
		sched: sched,
		api:   api,
		mets:  metrics.New(sched),
	}
	httpOpts := httpapi.Options{
		API:    api,
		Jobs:   sched,
		Log:    root.With(logx.String("comp", "http")),
		Pprof:  cfg.HTTP.Pprof,
		Status: a.status,
	}
	if cfg.HTTP.Metrics {
		httpOpts.Metrics = a.mets
	}
	a.http = httpapi.New(httpOpts)
	return a, nil
}

func (a *App) API() *jobapi.API { return a.api }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app's supervisor context ends.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err is the first fatal error of a background task.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.config()
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	runCtx := a.sup.Context()

	metricEvents, unsubMetrics := a.bus.Subscribe(64, metrics.EventTypes...)
	a.sup.Go("metrics.events", func(c context.Context) error {
		defer unsubMetrics()
		a.mets.Consume(c, metricEvents)
		return nil
	})

	a.notif.Start(runCtx)
	if err := a.sched.Start(runCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if cfg.Notifier.NotifyFailures {
		events, unsub := a.bus.Subscribe(32, scheduler.EventJobFailed)
		a.sup.Go("events.failures", func(c context.Context) error {
			defer unsub()
			a.forwardFailures(c, events)
			return nil
		})
	}
	if cfg.HTTP.Enabled {
		addr := cfg.HTTP.Addr
		a.sup.GoRestart("http", func(c context.Context) error {
			return a.http.Serve(c, addr)
		}, supervisor.WithMaxRestarts(5))
	}
	if a.cfgm != nil {
		updates := a.cfgm.Subscribe(1)
		a.sup.GoRestart("config.watch", a.cfgm.Watch)
		a.sup.Go("config.apply", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(updates)
			a.applyLoop(c, updates)
			return nil
		})
	}

	if wd := systemd.WatchdogInterval(); wd > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return systemd.Watchdog(c, wd, a.log)
		})
	}

	snap := a.sched.Snapshot()
	fields := []logx.Field{
		logx.Int("jobs", snap.Jobs),
		logx.String("store", a.store.Path()),
		logx.String("executor", cfg.Executor.Kind),
		logx.String("notifier", cfg.Notifier.Kind),
	}
	if cfg.HTTP.Enabled {
		fields = append(fields, logx.String("http", cfg.HTTP.Addr))
	}
	a.log.Info("cronbot started", fields...)
	systemd.Status(a.log, "%d jobs scheduled", snap.Jobs)
	systemd.Ready(a.log)
	return nil
}

// Stop persists the scheduler, stops background tasks and drains the
// notifier, each bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	systemd.Stopping(a.log)
	a.sched.Stop(ctx)

	var err error
	if a.sup != nil {
		if e := a.sup.Stop(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = e
		}
	}
	a.notif.Stop(ctx)
	a.log.Info("cronbot stopped")
	_ = a.logs.Close()
	return err
}

func (a *App) forwardFailures(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			run, ok := ev.Data.(scheduler.RunEvent)
			if !ok {
				continue
			}
			text := fmt.Sprintf("Reminder '%s' [%s] failed: %s", run.Name, run.JobID, run.Error)
			if err := a.notif.Notify(ctx, text); err != nil {
				a.log.Debug("failure notice not queued", logx.String("id", run.JobID), logx.Err(err))
			}
		}
	}
}

func (a *App) applyLoop(ctx context.Context, updates <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			a.apply(next)
		}
	}
}

// apply hot-swaps logging, notifier limits and the scheduler timezone.
// Other sections are logged as needing a restart.
func (a *App) apply(next *config.Config) {
	prev := a.config()
	changed, fields := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		return
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.Any("sections", changed)}, fields...)...)

	a.logs.Apply(logConfig(next))
	a.notif.Apply(notifierConfig(next))
	if prev.Scheduler.Timezone != next.Scheduler.Timezone {
		if loc, err := next.Location(); err == nil {
			a.sched.SetTimezone(loc.String())
			a.api.SetLocation(loc)
		}
	}
	if pending := config.RestartRequired(prev, next); len(pending) > 0 {
		a.log.Warn("config changes need a restart", logx.Any("sections", pending))
	}
	a.cfgMu.Lock()
	a.cfg = next
	a.cfgMu.Unlock()
}

func (a *App) config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

func (a *App) status() map[string]any {
	cfg := a.config()
	out := map[string]any{
		"executor": cfg.Executor.Kind,
		"notifier": cfg.Notifier.Kind,
		"store":    a.store.Path(),
	}
	if a.sup != nil {
		out["tasks"] = a.sup.Snapshot()
	}
	if h := a.notif.History(); len(h) > 0 {
		last := h[len(h)-1]
		out["last_notification_at"] = last.At.UTC().Format(time.RFC3339)
	}
	if st, ok := a.bus.(eventbus.Stats); ok {
		out["events_dropped"] = st.Dropped()
	}
	return out
}
