package schedule

import (
	"fmt"
	"time"

	"cronbot/internal/task/model"
)

// DisplayLayout is the timestamp format used in listings.
const DisplayLayout = "Jan 02 03:04 PM"

// Describe renders s as a short phrase for listings. It never fails.
func Describe(s model.Schedule, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	switch s.Kind {
	case model.KindAt:
		if s.AtMs == 0 {
			return "once (time not set)"
		}
		return "once at " + time.UnixMilli(s.AtMs).In(loc).Format(DisplayLayout)
	case model.KindEvery:
		if s.EveryMs <= 0 {
			return "every (interval not set)"
		}
		return "every " + formatInterval(s.EveryMs)
	case model.KindCron:
		out := "cron: " + s.Expr
		if s.TZ != "" && s.TZ != loc.String() {
			out += " (" + s.TZ + ")"
		}
		return out
	default:
		return fmt.Sprintf("unknown: %s", s.Kind)
	}
}

// formatInterval uses the largest unit that divides ms exactly.
func formatInterval(ms int64) string {
	units := []struct {
		size   int64
		suffix string
	}{
		{24 * time.Hour.Milliseconds(), "d"},
		{time.Hour.Milliseconds(), "h"},
		{time.Minute.Milliseconds(), "m"},
		{time.Second.Milliseconds(), "s"},
	}
	for _, u := range units {
		if ms >= u.size && ms%u.size == 0 {
			return fmt.Sprintf("%d%s", ms/u.size, u.suffix)
		}
	}
	return fmt.Sprintf("%dms", ms)
}
