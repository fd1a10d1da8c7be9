package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cronbot/internal/config"
	"cronbot/internal/storage"
	logx "cronbot/pkg/logx"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppPersistsJobsAcrossRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := filepath.Join(dir, "jobs.json")
	path := writeConfig(t, dir, `{
  "logging": {"level": "error"},
  "scheduler": {"store_path": "`+filepath.ToSlash(store)+`", "timezone": "UTC"},
  "http": {"enabled": false}
}`)

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msg := a.API().Add("water", "drink water", "every", "2h", false)
	if !strings.HasPrefix(msg, "Created reminder 'water'") {
		t.Fatalf("Add: %q", msg)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	jobs := storage.Load(store, logx.Nop())
	if len(jobs) != 1 || jobs[0].Name != "water" {
		t.Fatalf("stored jobs = %+v", jobs)
	}
	if jobs[0].State.NextRunAtMs == nil {
		t.Fatalf("next run not persisted")
	}
}

func TestAppDefaultsWithoutConfig(t *testing.T) {
	t.Parallel()

	a, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.cfgm != nil {
		t.Fatalf("expected no config manager")
	}
	if got := a.API().Location().String(); got != a.cfg.Scheduler.Timezone {
		t.Fatalf("location = %q, want %q", got, a.cfg.Scheduler.Timezone)
	}
}

func TestAppRejectsUnknownExecutor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `{"executor": {"kind": "shell"}}`)
	if _, err := New(path); err == nil {
		t.Fatalf("expected error for unknown executor kind")
	}
}

func TestApplySwitchesTimezone(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Scheduler.StorePath = filepath.Join(t.TempDir(), "jobs.json")
	cfg.Scheduler.Timezone = "UTC"
	cfg.HTTP.Enabled = false
	cfg.Logging.Level = "error"

	a, err := build(nil, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	next := *cfg
	next.Scheduler.Timezone = "Asia/Tokyo"
	a.apply(&next)

	if got := a.Scheduler().Timezone(); got != "Asia/Tokyo" {
		t.Fatalf("scheduler tz = %q", got)
	}
	if got := a.API().Location().String(); got != "Asia/Tokyo" {
		t.Fatalf("api location = %q", got)
	}
	if a.cfg != &next {
		t.Fatalf("config not committed")
	}
}
