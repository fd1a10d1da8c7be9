// Package schedule computes next fire times for job schedules and renders
// them for humans.
//
// Cron evaluation sits behind the Engine interface so the scheduler never
// depends on a particular cron library directly.
package schedule
