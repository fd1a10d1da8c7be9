package storage

import "cronbot/internal/task/model"

// StoreVersion tags the document format.
const StoreVersion = 1

// Store is the persistence port used by the scheduler.
type Store interface {
	Load() []model.CronJob
	Save(jobs []model.CronJob) error
}

// document is the on-disk shape: {"version": 1, "jobs": [...]}.
type document struct {
	Version int             `json:"version"`
	Jobs    []model.CronJob `json:"jobs"`
}
