// Package timeparse turns operator shorthand ("tomorrow 6pm", "in 30 minutes",
// "2h", "8am") into absolute times, intervals and daily cron expressions.
package timeparse

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnrecognized is returned (wrapped) for input that matches no grammar.
// Callers should ask for clarification instead of guessing.
var ErrUnrecognized = errors.New("unrecognized time expression")

// ErrPast is returned (wrapped) for an absolute time that is not after now.
var ErrPast = errors.New("time is in the past")

// DefaultHour is used for "tomorrow" without an explicit time.
const DefaultHour = 9

const maxAmount = 1_000_000

var (
	reDuration   = regexp.MustCompile(`^(\d{1,7})\s*(h|hr|hrs|hour|hours|m|min|mins|minute|minutes|d|day|days|s|sec|secs|second|seconds)$`)
	reInDuration = regexp.MustCompile(`^in\s+(\d{1,7})\s*(h|hr|hrs|hour|hours|m|min|mins|minute|minutes|d|day|days)$`)
	re12h        = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	re24h        = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

var absoluteLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Parser resolves expressions relative to Now in Location.
type Parser struct {
	Location *time.Location
	Now      func() time.Time
}

// New returns a parser for loc using the wall clock.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{Location: loc, Now: time.Now}
}

func (p *Parser) now() time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	if p.Now == nil {
		return time.Now().In(loc)
	}
	return p.Now().In(loc)
}

// ParseAt resolves a one-shot expression to an absolute time.
//
// Supported forms:
//   - "tomorrow", "tomorrow 6pm", "tomorrow at 18:30" (09:00 when no time is given)
//   - "today 6pm", "today at 18:30" (next day if the time has passed)
//   - "2h", "30m", "1d", "45s", "in 30 minutes", "in 2 hours"
//   - "2026-10-19 18:00" (default zone) or RFC 3339; ErrPast when not after now
func (p *Parser) ParseAt(text string) (time.Time, error) {
	raw := strings.TrimSpace(text)
	s := normalize(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("time required: %w", ErrUnrecognized)
	}
	now := p.now()

	if rest, ok := cutWord(s, "tomorrow"); ok {
		day := now.AddDate(0, 0, 1)
		if rest == "" {
			return clockOn(day, DefaultHour, 0), nil
		}
		h, m, err := ParseClock(rest)
		if err != nil {
			return time.Time{}, err
		}
		return clockOn(day, h, m), nil
	}

	if rest, ok := cutWord(s, "today"); ok {
		if rest == "" {
			return time.Time{}, fmt.Errorf("today needs a time (e.g. 'today 6pm'): %w", ErrUnrecognized)
		}
		h, m, err := ParseClock(rest)
		if err != nil {
			return time.Time{}, err
		}
		at := clockOn(now, h, m)
		if !at.After(now) {
			at = clockOn(now.AddDate(0, 0, 1), h, m)
		}
		return at, nil
	}

	if d, err := parseAmount(reDuration, s); err == nil {
		return now.Add(d), nil
	} else if !errors.Is(err, ErrUnrecognized) {
		return time.Time{}, err
	}
	if d, err := parseAmount(reInDuration, s); err == nil {
		return now.Add(d), nil
	} else if !errors.Is(err, ErrUnrecognized) {
		return time.Time{}, err
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			return future(t, now)
		}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return future(t, now)
	}

	return time.Time{}, fmt.Errorf("%q: %w", text, ErrUnrecognized)
}

// ParseInterval parses "2h", "30m", "1d", "45s" (and long unit names).
func (p *Parser) ParseInterval(text string) (time.Duration, error) {
	return ParseInterval(text)
}

// ParseInterval parses a bare duration into an interval.
func ParseInterval(text string) (time.Duration, error) {
	d, err := parseAmount(reDuration, normalize(text))
	if err != nil {
		if errors.Is(err, ErrUnrecognized) {
			return 0, fmt.Errorf("%q: %w", text, ErrUnrecognized)
		}
		return 0, err
	}
	return d, nil
}

// ParseDaily converts a clock time into a cron expression firing at that
// minute every day.
func ParseDaily(text string) (string, error) {
	h, m, err := ParseClock(text)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

// ParseClock parses a time of day.
//
// 12-hour forms need an am/pm suffix ("6pm", "6:30 pm"); 12am is 0 and 12pm
// is 12. 24-hour forms are HH:MM ("18:00", "6:30").
func ParseClock(text string) (hour int, minute int, err error) {
	s := normalize(text)
	if m := re12h.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm := 0
		if m[2] != "" {
			mm, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || mm > 59 {
			return 0, 0, fmt.Errorf("invalid time %q: %w", text, ErrUnrecognized)
		}
		switch {
		case m[3] == "am" && h == 12:
			h = 0
		case m[3] == "pm" && h != 12:
			h += 12
		}
		return h, mm, nil
	}
	if m := re24h.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h > 23 || mm > 59 {
			return 0, 0, fmt.Errorf("invalid time %q: %w", text, ErrUnrecognized)
		}
		return h, mm, nil
	}
	return 0, 0, fmt.Errorf("time %q (use '6pm', '6:30pm' or '18:00'): %w", text, ErrUnrecognized)
}

func future(t, now time.Time) (time.Time, error) {
	if !t.After(now) {
		return time.Time{}, fmt.Errorf("%s: %w", t.Format(time.RFC3339), ErrPast)
	}
	return t, nil
}

func parseAmount(re *regexp.Regexp, s string) (time.Duration, error) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrUnrecognized
	}
	u := unit(m[2])
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n > maxAmount || n > math.MaxInt64/int64(u) {
		return 0, fmt.Errorf("amount %q out of range", m[1])
	}
	if n <= 0 {
		return 0, fmt.Errorf("duration must be > 0")
	}
	return time.Duration(n) * u, nil
}

func unit(u string) time.Duration {
	switch u[0] {
	case 'd':
		return 24 * time.Hour
	case 'h':
		return time.Hour
	case 'm':
		return time.Minute
	default:
		return time.Second
	}
}

func clockOn(day time.Time, hour, minute int) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, hour, minute, 0, 0, day.Location())
}

// cutWord strips a leading keyword plus an optional "at".
func cutWord(s, word string) (string, bool) {
	if s != word && !strings.HasPrefix(s, word+" ") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(s, word))
	if rest == "at" {
		return "", true
	}
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "at "))
	return rest, true
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
