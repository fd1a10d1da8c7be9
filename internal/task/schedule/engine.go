package schedule

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // zone lookups must work on hosts without a zoneinfo database

	"github.com/robfig/cron/v3"
)

// ErrNoMatch is returned when a cron expression never fires again.
var ErrNoMatch = errors.New("cron expression has no upcoming match")

// Engine evaluates cron expressions.
type Engine interface {
	// Next returns the first activation strictly after `after`, evaluated in tz.
	Next(expr, tz string, after time.Time) (time.Time, error)
	// Validate reports whether expr is a well-formed expression.
	Validate(expr string) error
}

// RobfigEngine evaluates standard 5-field expressions (plus @descriptors)
// with robfig/cron.
type RobfigEngine struct {
	parser cron.Parser

	mu   sync.Mutex
	locs map[string]*time.Location
}

// NewRobfigEngine returns the production cron engine.
func NewRobfigEngine() *RobfigEngine {
	return &RobfigEngine{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		locs:   map[string]*time.Location{},
	}
}

func (e *RobfigEngine) Validate(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return errors.New("cron expression required")
	}
	if strings.HasPrefix(expr, "@every") {
		// Intervals are modelled as "every" schedules, not cron.
		return fmt.Errorf("invalid cron expression %q: use an every schedule for intervals", expr)
	}
	if _, err := e.parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

func (e *RobfigEngine) Next(expr, tz string, after time.Time) (time.Time, error) {
	if err := e.Validate(expr); err != nil {
		return time.Time{}, err
	}
	sched, err := e.parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, err
	}
	loc, err := e.location(tz)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNoMatch, expr)
	}
	return next, nil
}

func (e *RobfigEngine) location(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if loc, ok := e.locs[tz]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	e.locs[tz] = loc
	return loc, nil
}
