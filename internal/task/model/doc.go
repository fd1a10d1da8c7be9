// Package model defines the persisted job types: Schedule, JobState and CronJob.
//
// The JSON field names are the store format; changing them requires bumping
// storage.StoreVersion.
package model
