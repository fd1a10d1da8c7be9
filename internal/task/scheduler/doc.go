// Package scheduler owns the live job collection and a single re-armable
// timer.
//
// Every mutation and every timer fire recomputes the earliest pending run
// across enabled jobs and re-arms one timer for it; there is never one timer
// per job. When the timer fires, due jobs run sequentially through the
// Executor, their state is recorded, one-shot jobs are dropped, recurring
// jobs are rescheduled, and the whole collection is persisted before the
// timer is armed again.
package scheduler
