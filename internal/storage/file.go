package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cronbot/internal/task/model"
	logx "cronbot/pkg/logx"
)

// DefaultPath is used when no store path is configured.
const DefaultPath = "cron_jobs.json"

// File is a Store backed by one JSON document.
type File struct {
	path string
	log  logx.Logger

	// mu serializes writers that share this File; the rename is what makes
	// a single write atomic.
	mu sync.Mutex
}

// NewFile returns a store for path (DefaultPath when empty).
func NewFile(path string, log logx.Logger) *File {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &File{path: path, log: log}
}

// Path returns the document location.
func (f *File) Path() string { return f.path }

func (f *File) Load() []model.CronJob { return Load(f.path, f.log) }

func (f *File) Save(jobs []model.CronJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := Save(f.path, jobs); err != nil {
		return err
	}
	f.log.Debug("store saved", logx.String("path", f.path), logx.Int("jobs", len(jobs)))
	return nil
}

// Load reads the document at path. It returns an empty collection (never an
// error) when the file is missing or unparsable.
func Load(path string, log logx.Logger) []model.CronJob {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info("store not found, starting empty", logx.String("path", path))
		} else {
			log.Error("store read failed, starting empty", logx.String("path", path), logx.Err(err))
		}
		return []model.CronJob{}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []model.CronJob{}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Error("store parse failed, starting empty", logx.String("path", path), logx.Err(err))
		return []model.CronJob{}
	}
	if doc.Version != StoreVersion {
		log.Warn("store version mismatch", logx.Int("version", doc.Version), logx.Int("want", StoreVersion))
	}

	jobs := make([]model.CronJob, 0, len(doc.Jobs))
	for _, j := range doc.Jobs {
		if strings.TrimSpace(j.ID) == "" {
			log.Warn("skipping stored job without id", logx.String("name", j.Name))
			continue
		}
		jobs = append(jobs, j)
	}
	log.Info("store loaded", logx.String("path", path), logx.Int("jobs", len(jobs)))
	return jobs
}

// Save atomically replaces the document at path with jobs.
func Save(path string, jobs []model.CronJob) (err error) {
	if jobs == nil {
		jobs = []model.CronJob{}
	}
	data, err := json.MarshalIndent(document{Version: StoreVersion, Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
