package schedule

import (
	"time"

	"cronbot/internal/task/model"
	logx "cronbot/pkg/logx"
)

// Calculator computes next run times. The zero value uses a fresh
// RobfigEngine and discards logs.
type Calculator struct {
	Engine Engine
	Log    logx.Logger
}

// NewCalculator returns a Calculator using engine (RobfigEngine when nil).
func NewCalculator(engine Engine, log logx.Logger) *Calculator {
	if engine == nil {
		engine = NewRobfigEngine()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Calculator{Engine: engine, Log: log}
}

// NextRunAt returns the next fire time in epoch ms strictly after nowMs.
// ok is false when the schedule will not fire again.
func (c *Calculator) NextRunAt(s model.Schedule, nowMs int64) (int64, bool) {
	switch s.Kind {
	case model.KindAt:
		if s.AtMs > nowMs {
			return s.AtMs, true
		}
		return 0, false

	case model.KindEvery:
		if s.EveryMs <= 0 {
			return 0, false
		}
		// Epoch aligned: jobs with the same interval share fire boundaries.
		return (floorDiv(nowMs, s.EveryMs) + 1) * s.EveryMs, true

	case model.KindCron:
		if s.Expr == "" {
			return 0, false
		}
		engine := c.Engine
		if engine == nil {
			engine = NewRobfigEngine()
			c.Engine = engine
		}
		next, err := engine.Next(s.Expr, s.Location(), time.UnixMilli(nowMs))
		if err != nil {
			c.Log.Warn("cron next run failed", logx.String("expr", s.Expr), logx.String("tz", s.Location()), logx.Err(err))
			return 0, false
		}
		return next.UnixMilli(), true

	default:
		c.Log.Warn("unknown schedule kind", logx.String("kind", string(s.Kind)))
		return 0, false
	}
}

// Next is NextRunAt with the nullable result the job state stores.
func (c *Calculator) Next(s model.Schedule, nowMs int64) *int64 {
	if ms, ok := c.NextRunAt(s, nowMs); ok {
		return &ms
	}
	return nil
}

// floorDiv divides rounding toward negative infinity so pre-epoch clocks
// still land on the next boundary.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
