package scheduler

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"cronbot/internal/task/model"
)

func everyJob(name string, d time.Duration) model.CronJob {
	return model.CronJob{Name: name, Prompt: name, Schedule: model.Every(d), Enabled: true}
}

func atJob(name string, atMs int64) model.CronJob {
	return model.CronJob{
		Name:           name,
		Prompt:         name,
		Schedule:       model.Schedule{Kind: model.KindAt, AtMs: atMs},
		Enabled:        true,
		DeleteAfterRun: true,
	}
}

func TestAddEveryFromEpochArmsThirtyMinutes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)

	job := h.add(t, everyJob("water", 30*time.Minute))
	if job.State.NextRunAtMs == nil || *job.State.NextRunAtMs != 1_800_000 {
		t.Fatalf("next run = %v, want 1800000", job.State.NextRunAtMs)
	}
	if got := h.timers.Last(t).d; got != 30*time.Minute {
		t.Fatalf("timer delay = %v, want 30m", got)
	}
	if at, ok := wakeMs(t, h.svc); !ok || at != 1_800_000 {
		t.Fatalf("wake = %d,%v", at, ok)
	}
	if len(job.ID) != 8 || job.CreatedAtMs != 0 {
		t.Fatalf("unexpected identity: %+v", job)
	}
	if saved := h.store.Saved(); len(saved) != 1 || saved[0].ID != job.ID {
		t.Fatalf("store not updated: %+v", saved)
	}
}

func TestWakeIsEarliestEnabledRun(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)

	h.add(t, everyJob("hourly", time.Hour))
	h.add(t, everyJob("ten", 10*time.Minute))
	disabled := everyJob("off", time.Minute)
	disabled.Enabled = false
	h.add(t, disabled)
	h.add(t, atJob("once", 5*60_000))

	at, ok := wakeMs(t, h.svc)
	if !ok || at != 5*60_000 {
		t.Fatalf("wake = %d,%v want 300000", at, ok)
	}
	if got := h.timers.Last(t).d; got != 5*time.Minute {
		t.Fatalf("delay = %v", got)
	}
}

func TestAddThenRemoveLeavesNoTimer(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)

	job := h.add(t, everyJob("x", time.Minute))
	armed := h.timers.Last(t)

	removed, err := h.svc.RemoveJob(job.ID)
	if err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if removed.ID != job.ID {
		t.Fatalf("removed %q", removed.ID)
	}
	if !armed.Stopped() {
		t.Fatalf("old timer still active")
	}
	if _, ok := h.svc.NextWake(); ok {
		t.Fatalf("timer armed with no jobs")
	}
	if len(h.svc.ListJobs()) != 0 || len(h.store.Saved()) != 0 {
		t.Fatalf("job not removed")
	}
}

func TestOneShotRunsOnceAndIsRemoved(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	events, unsub := h.bus.Subscribe(8)
	defer unsub()

	h.add(t, atJob("ping", 60_000))
	h.fire(t, 60_000)

	if got := h.exec.Calls(); !reflect.DeepEqual(got, []string{"ping"}) {
		t.Fatalf("calls = %v", got)
	}
	if n := len(h.svc.ListJobs()); n != 0 {
		t.Fatalf("jobs left = %d", n)
	}
	if _, ok := h.svc.NextWake(); ok {
		t.Fatalf("timer armed after last one-shot")
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	want := []string{EventJobExecuted, EventJobRemoved}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("events = %v want %v", types, want)
	}
}

func TestFailingRecurringJobStaysEnabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	h.exec.fn = func(context.Context, model.CronJob) error { return errBoom }

	job := h.add(t, everyJob("flaky", time.Minute))
	h.fire(t, 60_000)

	got, err := h.svc.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !got.Enabled {
		t.Fatalf("job disabled after failure")
	}
	if got.State.LastStatus == nil || *got.State.LastStatus != model.StatusError {
		t.Fatalf("status = %v", got.State.LastStatus)
	}
	if got.State.LastError == nil || *got.State.LastError != "boom" {
		t.Fatalf("last error = %v", got.State.LastError)
	}
	if got.State.NextRunAtMs == nil || *got.State.NextRunAtMs != 120_000 {
		t.Fatalf("next = %v want 120000", got.State.NextRunAtMs)
	}
	if got.State.LastRunAtMs == nil || *got.State.LastRunAtMs != 60_000 {
		t.Fatalf("last run = %v", got.State.LastRunAtMs)
	}

	// A later success clears the error.
	h.exec.mu.Lock()
	h.exec.fn = nil
	h.exec.mu.Unlock()
	h.fire(t, 120_000)
	got, _ = h.svc.GetJob(job.ID)
	if *got.State.LastStatus != model.StatusOK || got.State.LastError != nil {
		t.Fatalf("state after success = %+v", got.State)
	}
}

func TestReenableRecomputesFromNow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	job := h.add(t, everyJob("x", 10*time.Minute))

	off, on := false, true
	got, err := h.svc.UpdateJob(job.ID, Patch{Enabled: &off})
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if got.Enabled || *got.State.NextRunAtMs != 600_000 {
		t.Fatalf("disable changed next run: %+v", got)
	}
	if _, ok := h.svc.NextWake(); ok {
		t.Fatalf("timer armed for disabled job")
	}

	h.clock.SetMs(3_600_000 + 1)
	got, err = h.svc.UpdateJob(job.ID, Patch{Enabled: &on})
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if want := int64(3_600_000 + 600_000); *got.State.NextRunAtMs != want {
		t.Fatalf("next = %d want %d", *got.State.NextRunAtMs, want)
	}
}

func TestUpdateNameAndSchedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	job := h.add(t, everyJob("x", time.Hour))

	name := "renamed"
	sc := model.Every(15 * time.Minute)
	got, err := h.svc.UpdateJob(job.ID, Patch{Name: &name, Schedule: &sc})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if got.Name != "renamed" || *got.State.NextRunAtMs != 900_000 {
		t.Fatalf("got %+v", got)
	}

	bad := model.Schedule{Kind: model.KindCron, Expr: "not cron"}
	if _, err := h.svc.UpdateJob(job.ID, Patch{Schedule: &bad}); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("err = %v, want ErrInvalidJob", err)
	}
	if cur, _ := h.svc.GetJob(job.ID); cur.Schedule.EveryMs != 900_000 {
		t.Fatalf("invalid patch applied: %+v", cur.Schedule)
	}
}

func TestDueJobsRunInNextRunOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)

	h.add(t, atJob("third", 3_000))
	h.add(t, atJob("first", 1_000))
	h.add(t, atJob("tie-a", 2_000))
	h.add(t, atJob("tie-b", 2_000))

	h.fire(t, 10_000)

	want := []string{"first", "tie-a", "tie-b", "third"}
	if got := h.exec.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v want %v", got, want)
	}
}

func TestPanicIsRecordedAndPassContinues(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	h.exec.fn = func(_ context.Context, j model.CronJob) error {
		if j.Name == "bad" {
			panic("kaboom")
		}
		return nil
	}

	bad := h.add(t, everyJob("bad", time.Minute))
	good := h.add(t, everyJob("good", time.Minute))
	h.fire(t, 60_000)

	b, _ := h.svc.GetJob(bad.ID)
	g, _ := h.svc.GetJob(good.ID)
	if *b.State.LastStatus != model.StatusError || !strings.Contains(*b.State.LastError, "kaboom") {
		t.Fatalf("bad state = %+v", b.State)
	}
	if *g.State.LastStatus != model.StatusOK {
		t.Fatalf("good state = %+v", g.State)
	}
}

func TestStartRecomputesEnabledJobs(t *testing.T) {
	t.Parallel()
	stale := int64(5)
	seed := []model.CronJob{
		{ID: "aaaa0001", Name: "on", Schedule: model.Every(time.Minute), Enabled: true,
			State: model.JobState{NextRunAtMs: &stale}},
		{ID: "aaaa0002", Name: "off", Schedule: model.Every(time.Minute), Enabled: false,
			State: model.JobState{NextRunAtMs: &stale}},
		{ID: "aaaa0003", Name: "expired", Schedule: model.Schedule{Kind: model.KindAt, AtMs: 1}, Enabled: true},
	}
	h := newHarness(t, 90_000, seed...)

	jobs := h.svc.ListJobs()
	if *jobs[0].State.NextRunAtMs != 120_000 {
		t.Fatalf("enabled next = %d", *jobs[0].State.NextRunAtMs)
	}
	if *jobs[1].State.NextRunAtMs != stale {
		t.Fatalf("disabled job recomputed")
	}
	if jobs[2].State.NextRunAtMs != nil {
		t.Fatalf("expired at job has next run %d", *jobs[2].State.NextRunAtMs)
	}
	if at, ok := wakeMs(t, h.svc); !ok || at != 120_000 {
		t.Fatalf("wake = %d,%v", at, ok)
	}
	if h.store.saves == 0 {
		t.Fatalf("Start did not persist")
	}
}

func TestPersistFailureKeepsMemory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	h.store.mu.Lock()
	h.store.err = errors.New("disk full")
	h.store.mu.Unlock()

	job, err := h.svc.AddJob(everyJob("x", time.Minute))
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if _, err := h.svc.GetJob(job.ID); err != nil {
		t.Fatalf("job lost: %v", err)
	}

	h.store.mu.Lock()
	h.store.err = nil
	h.store.mu.Unlock()
	h.add(t, everyJob("y", time.Minute))
	if n := len(h.store.Saved()); n != 2 {
		t.Fatalf("retry saved %d jobs, want 2", n)
	}
}

func TestStaleTimerCallbackIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)

	h.add(t, everyJob("x", time.Minute))
	stale := h.timers.Last(t)
	h.add(t, everyJob("y", time.Hour)) // re-arms

	h.clock.SetMs(60_000)
	stale.f()
	if calls := h.exec.Calls(); len(calls) != 0 {
		t.Fatalf("stale callback executed %v", calls)
	}

	h.timers.Last(t).f()
	if calls := h.exec.Calls(); !reflect.DeepEqual(calls, []string{"x"}) {
		t.Fatalf("calls = %v", calls)
	}
}

func TestExecutorCanManageJobs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	h.exec.fn = func(_ context.Context, j model.CronJob) error {
		switch j.Name {
		case "spawner":
			_, err := h.svc.AddJob(everyJob("child", time.Hour))
			return err
		case "suicide":
			_, err := h.svc.RemoveJob(j.ID)
			return err
		}
		return nil
	}

	h.add(t, everyJob("spawner", time.Minute))
	h.add(t, everyJob("suicide", time.Minute))

	fire := h.timers.Last(t).f
	h.clock.SetMs(60_000)
	done := make(chan struct{})
	go func() {
		fire()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("fire pass deadlocked")
	}

	var names []string
	for _, j := range h.svc.ListJobs() {
		names = append(names, j.Name)
	}
	if want := []string{"spawner", "child"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("jobs = %v want %v", names, want)
	}
}

func TestRunNow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	rec := h.add(t, everyJob("rec", time.Hour))
	once := h.add(t, atJob("once", 3_600_000))

	h.clock.SetMs(1_000)
	got, err := h.svc.RunNow(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if *got.State.LastRunAtMs != 1_000 || *got.State.NextRunAtMs != 3_600_000 {
		t.Fatalf("state = %+v", got.State)
	}

	if _, err := h.svc.RunNow(context.Background(), once.ID); err != nil {
		t.Fatalf("RunNow once: %v", err)
	}
	if _, err := h.svc.GetJob(once.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("one-shot kept after manual run: %v", err)
	}

	h.exec.fn = func(context.Context, model.CronJob) error { return errBoom }
	if _, err := h.svc.RunNow(context.Background(), rec.ID); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	on := true

	if _, err := h.svc.RemoveJob("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveJob: %v", err)
	}
	if _, err := h.svc.UpdateJob("nope", Patch{Enabled: &on}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateJob: %v", err)
	}
	if _, err := h.svc.GetJob("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetJob: %v", err)
	}
	if _, err := h.svc.RunNow(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RunNow: %v", err)
	}
}

func TestAddValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)

	cases := []struct {
		name string
		job  model.CronJob
		want error
	}{
		{"no name", model.CronJob{Schedule: model.Every(time.Minute)}, ErrInvalidJob},
		{"zero every", model.CronJob{Name: "x", Schedule: model.Schedule{Kind: model.KindEvery}}, ErrInvalidJob},
		{"at unset", model.CronJob{Name: "x", Schedule: model.Schedule{Kind: model.KindAt}}, ErrInvalidJob},
		{"bad cron", model.CronJob{Name: "x", Schedule: model.Cron("61 * * * *", "")}, ErrInvalidJob},
		{"bad tz", model.CronJob{Name: "x", Schedule: model.Cron("0 9 * * *", "Mars/Base")}, ErrInvalidJob},
		{"unknown kind", model.CronJob{Name: "x", Schedule: model.Schedule{Kind: "weekly"}}, ErrInvalidJob},
	}
	for _, tc := range cases {
		if _, err := h.svc.AddJob(tc.job); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v want %v", tc.name, err, tc.want)
		}
	}

	first := h.add(t, everyJob("a", time.Minute))
	dup := everyJob("b", time.Minute)
	dup.ID = first.ID
	if _, err := h.svc.AddJob(dup); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate: %v", err)
	}
	if n := len(h.svc.ListJobs()); n != 1 {
		t.Fatalf("jobs = %d", n)
	}
}

func TestCronGetsServiceTimezone(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	job := h.add(t, model.CronJob{Name: "daily", Schedule: model.Cron("0 9 * * *", ""), Enabled: true})
	if job.Schedule.TZ != "UTC" {
		t.Fatalf("tz = %q", job.Schedule.TZ)
	}
	if *job.State.NextRunAtMs != 9*3_600_000 {
		t.Fatalf("next = %d", *job.State.NextRunAtMs)
	}

	h.svc.SetTimezone("Asia/Kolkata")
	if h.svc.Timezone() != "Asia/Kolkata" {
		t.Fatalf("timezone not updated")
	}
	if cur, _ := h.svc.GetJob(job.ID); cur.Schedule.TZ != "UTC" {
		t.Fatalf("existing job zone changed")
	}
}

func TestStopAndNotStarted(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	h.add(t, everyJob("x", time.Minute))
	armed := h.timers.Last(t)

	h.svc.Stop(context.Background())
	if !armed.Stopped() {
		t.Fatalf("timer not stopped")
	}
	if _, ok := h.svc.NextWake(); ok {
		t.Fatalf("wake reported after stop")
	}
	if snap := h.svc.Snapshot(); snap.Started || snap.Jobs != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, err := h.svc.AddJob(everyJob("y", time.Minute)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("AddJob after stop: %v", err)
	}

	// A callback that slipped through after Stop is ignored.
	h.clock.SetMs(60_000)
	armed.f()
	if calls := h.exec.Calls(); len(calls) != 0 {
		t.Fatalf("executed after stop: %v", calls)
	}
}

func TestStopWaitsForRunningPass(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	started := make(chan struct{})
	release := make(chan struct{})
	h.exec.fn = func(context.Context, model.CronJob) error {
		close(started)
		<-release
		return nil
	}
	h.add(t, everyJob("slow", time.Minute))

	fire := h.timers.Last(t).f
	h.clock.SetMs(60_000)
	go fire()
	<-started

	stopped := make(chan struct{})
	go func() {
		h.svc.Stop(context.Background())
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatalf("Stop returned while the pass was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return after the pass finished")
	}
	saved := h.store.Saved()
	if len(saved) != 1 || saved[0].State.LastRunAtMs == nil || *saved[0].State.LastRunAtMs != 60_000 {
		t.Fatalf("saved = %+v", saved)
	}
}

func TestStopGivesUpWhenContextEnds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)
	started := make(chan struct{})
	release := make(chan struct{})
	h.exec.fn = func(context.Context, model.CronJob) error {
		close(started)
		<-release
		return nil
	}
	h.add(t, everyJob("stuck", time.Minute))

	fire := h.timers.Last(t).f
	h.clock.SetMs(60_000)
	passDone := make(chan struct{})
	go func() {
		fire()
		close(passDone)
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		h.svc.Stop(ctx)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop ignored its context")
	}
	if h.svc.Snapshot().Started {
		t.Fatalf("still started")
	}

	close(release)
	<-passDone
	// passMu is released again once the stuck pass ends.
	if _, err := h.svc.RunNow(context.Background(), "missing"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("RunNow after stop: %v", err)
	}
}

func TestNoExecutorRecordsError(t *testing.T) {
	t.Parallel()
	svc := New(Options{Clock: &fakeClock{now: time.UnixMilli(0)}, Timers: &fakeTimers{}, Timezone: "UTC"})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop(context.Background())

	job, err := svc.AddJob(everyJob("x", time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.RunNow(context.Background(), job.ID)
	if !errors.Is(err, ErrNoExecutor) {
		t.Fatalf("err = %v", err)
	}
	if *got.State.LastError != ErrNoExecutor.Error() {
		t.Fatalf("last error = %q", *got.State.LastError)
	}
}
