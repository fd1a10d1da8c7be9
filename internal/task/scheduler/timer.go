package scheduler

import "time"

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type afterFuncTimers struct{}

func (afterFuncTimers) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RuntimeTimers is the production delayed-callback capability (time.AfterFunc).
var RuntimeTimers TimerFactory = afterFuncTimers{}
