package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cronbot/internal/task/model"
	logx "cronbot/pkg/logx"
)

func sampleJobs() []model.CronJob {
	return []model.CronJob{
		{
			ID:             "a1b2c3d4",
			Name:           "water",
			Prompt:         "remind me to drink water",
			Schedule:       model.Every(2 * time.Hour),
			Enabled:        true,
			CreatedAtMs:    1_700_000_000_000,
			State:          model.JobState{NextRunAtMs: model.Ptr[int64](1_700_007_200_000)},
			DeleteAfterRun: false,
		},
		{
			ID:             "deadbeef",
			Name:           "call mom",
			Prompt:         "call mom",
			Schedule:       model.Schedule{Kind: model.KindAt, AtMs: 1_700_100_000_000},
			Enabled:        false,
			DeleteAfterRun: true,
			CreatedAtMs:    1_700_000_000_001,
			State: model.JobState{
				LastRunAtMs: model.Ptr[int64](1_699_999_000_000),
				LastStatus:  model.Ptr(model.StatusError),
				LastError:   model.Ptr("executor unavailable"),
			},
		},
		{
			ID:          "0badf00d",
			Name:        "standup",
			Prompt:      "summarize my day",
			Schedule:    model.Cron("30 9 * * 1-5", "Europe/Berlin"),
			Enabled:     true,
			CreatedAtMs: 1_700_000_000_002,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "cron_jobs.json")
	jobs := sampleJobs()

	if err := Save(path, jobs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := Load(path, logx.Nop())
	if !reflect.DeepEqual(got, jobs) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", got, jobs)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	got := Load(filepath.Join(t.TempDir(), "absent.json"), logx.Nop())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cron_jobs.json")
	if err := os.WriteFile(path, []byte(`{"version": 1, "jobs": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Load(path, logx.Nop()); len(got) != 0 {
		t.Fatalf("expected empty collection, got %d jobs", len(got))
	}
}

func TestLoadToleratesVersionMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cron_jobs.json")
	raw := `{"version": 7, "jobs": [{"id": "abcd1234", "name": "x", "prompt": "p", "schedule": {"kind": "every", "every_ms": 60000}, "enabled": true}, {"name": "no id"}]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	got := Load(path, logx.Nop())
	if len(got) != 1 || got[0].ID != "abcd1234" || got[0].Schedule.EveryMs != 60000 {
		t.Fatalf("unexpected jobs: %+v", got)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "cron_jobs.json")
	for i := 0; i < 3; i++ {
		if err := Save(path, sampleJobs()[:i+1]); err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "cron_jobs.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents: %v", names)
	}
	if got := Load(path, logx.Nop()); len(got) != 3 {
		t.Fatalf("expected last save to win with 3 jobs, got %d", len(got))
	}
}

func TestSaveFailureKeepsPreviousDocument(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "cron_jobs.json")
	if err := Save(path, sampleJobs()); err != nil {
		t.Fatal(err)
	}
	// A directory squatting on the target path makes the rename fail.
	blocked := filepath.Join(dir, "blocked.json")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(blocked, "keep"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Save(blocked, sampleJobs()); err == nil {
		t.Fatal("expected save over a directory to fail")
	}
	if got := Load(path, logx.Nop()); len(got) != 3 {
		t.Fatalf("original document damaged: %d jobs", len(got))
	}
}

func TestFileStoreDefaults(t *testing.T) {
	t.Parallel()
	if got := NewFile("  ", logx.Nop()).Path(); got != DefaultPath {
		t.Fatalf("Path() = %q, want %q", got, DefaultPath)
	}
	path := filepath.Join(t.TempDir(), "jobs.json")
	st := NewFile(path, logx.Nop())
	if err := st.Save(nil); err != nil {
		t.Fatalf("Save(nil): %v", err)
	}
	if got := st.Load(); len(got) != 0 {
		t.Fatalf("expected empty, got %d", len(got))
	}
}
