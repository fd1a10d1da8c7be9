package timeparse

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func testParser(t *testing.T) (*Parser, time.Time) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	now := time.Date(2026, 10, 18, 14, 0, 0, 0, loc)
	return &Parser{Location: loc, Now: func() time.Time { return now }}, now
}

func TestParseAt(t *testing.T) {
	t.Parallel()
	p, now := testParser(t)
	loc := now.Location()
	day := func(d, h, m int) time.Time { return time.Date(2026, 10, d, h, m, 0, 0, loc) }

	tests := []struct {
		in   string
		want time.Time
	}{
		{"tomorrow 6pm", day(19, 18, 0)},
		{"Tomorrow at 6:30 PM", day(19, 18, 30)},
		{"tomorrow at 18:30", day(19, 18, 30)},
		{"tomorrow", day(19, 9, 0)},
		{"today 6pm", day(18, 18, 0)},
		{"today at 10am", day(19, 10, 0)},
		{"today 2pm", day(19, 14, 0)},
		{"2h", now.Add(2 * time.Hour)},
		{"30m", now.Add(30 * time.Minute)},
		{"1d", now.Add(24 * time.Hour)},
		{"45s", now.Add(45 * time.Second)},
		{"90 minutes", now.Add(90 * time.Minute)},
		{"in 30 minutes", now.Add(30 * time.Minute)},
		{"in 2 hours", now.Add(2 * time.Hour)},
		{"in 3 days", now.Add(72 * time.Hour)},
		{"2026-10-20 07:15", day(20, 7, 15)},
		{"2026-10-20T07:15:00Z", time.Date(2026, 10, 20, 7, 15, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, err := p.ParseAt(tt.in)
			if err != nil {
				t.Fatalf("ParseAt(%q) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseAt(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAtInvalid(t *testing.T) {
	t.Parallel()
	p, _ := testParser(t)
	for _, in := range []string{"", "whenever", "tomorrow blah", "today", "in 10 seconds", "2 weeks", "tomorrow 25:00"} {
		if got, err := p.ParseAt(in); err == nil {
			t.Fatalf("ParseAt(%q) = %s, expected error", in, got)
		}
	}
	if _, err := p.ParseAt("whenever"); !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("expected ErrUnrecognized, got %v", err)
	}
	if _, err := p.ParseAt("0m"); err == nil {
		t.Fatal("zero duration should be rejected")
	}
}

func TestParseAtRejectsPastAbsoluteTimes(t *testing.T) {
	t.Parallel()
	p, _ := testParser(t)
	for _, in := range []string{"2020-01-01 10:00", "2026-10-18 14:00", "2026-10-18T08:00:00Z"} {
		if got, err := p.ParseAt(in); !errors.Is(err, ErrPast) {
			t.Fatalf("ParseAt(%q) = %s, %v; want ErrPast", in, got, err)
		}
	}
}

func TestParseAmountOverflow(t *testing.T) {
	t.Parallel()
	p, _ := testParser(t)
	for _, in := range []string{"106752d", "300000d", "2562048h"} {
		if got, err := ParseInterval(in); err == nil {
			t.Fatalf("ParseInterval(%q) = %s, expected error", in, got)
		}
		if got, err := p.ParseAt(in); err == nil {
			t.Fatalf("ParseAt(%q) = %s, expected error", in, got)
		}
	}
	if got, err := ParseInterval("106751d"); err != nil || got != 106751*24*time.Hour {
		t.Fatalf("ParseInterval(106751d) = %s, %v", got, err)
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		h, m int
	}{
		{"6pm", 18, 0},
		{"6:30pm", 18, 30},
		{"6:30 pm", 18, 30},
		{"6am", 6, 0},
		{"12am", 0, 0},
		{"12:15am", 0, 15},
		{"12pm", 12, 0},
		{"18:00", 18, 0},
		{"6:30", 6, 30},
		{"0:00", 0, 0},
		{"23:59", 23, 59},
	}
	for _, tt := range tests {
		h, m, err := ParseClock(tt.in)
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", tt.in, err)
		}
		if h != tt.h || m != tt.m {
			t.Fatalf("ParseClock(%q) = %d:%02d, want %d:%02d", tt.in, h, m, tt.h, tt.m)
		}
	}

	for _, in := range []string{"6", "13pm", "0am", "24:00", "18:60", "6.30pm", "noon", ""} {
		if _, _, err := ParseClock(in); !errors.Is(err, ErrUnrecognized) {
			t.Fatalf("ParseClock(%q): expected ErrUnrecognized, got %v", in, err)
		}
	}
}

func TestParseInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2h", 2 * time.Hour},
		{"30m", 30 * time.Minute},
		{"1d", 24 * time.Hour},
		{"5s", 5 * time.Second},
		{"90 minutes", 90 * time.Minute},
		{"3 hours", 3 * time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseInterval(tt.in)
		if err != nil {
			t.Fatalf("ParseInterval(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseInterval(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	for _, in := range []string{"", "h", "0h", "2 weeks", "in 2h", "tomorrow"} {
		if _, err := ParseInterval(in); err == nil {
			t.Fatalf("ParseInterval(%q): expected error", in)
		}
	}
}

func TestParseDaily(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"8am":     "0 8 * * *",
		"10:30am": "30 10 * * *",
		"18:00":   "0 18 * * *",
		"12am":    "0 0 * * *",
	}
	for in, want := range tests {
		got, err := ParseDaily(in)
		if err != nil {
			t.Fatalf("ParseDaily(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseDaily(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseDaily("every morning"); err == nil {
		t.Fatal("expected error")
	}
}
