// Package cron parses the schedule expressions used by the background jobs.
//
// Two forms are accepted: the standard 5-field format
// "minute hour day-of-month month day-of-week" (with "*", "*/n", "a-b",
// "a-b/n" and comma lists), and "@every <duration>" for fixed intervals.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule yields activation times.
type Schedule interface {
	// Next returns the first activation strictly after t.
	Next(t time.Time) time.Time
}

// Every is a fixed-interval schedule.
type Every time.Duration

// Next implements Schedule.
func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// Parse parses expr into a Schedule.
func Parse(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("parsing @every duration: %w", err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("@every duration must be at least 1s, got %s", d)
		}
		return Every(d), nil
	}
	return parseFields(expr)
}

// field represents a parsed cron field that can match against a value.
type field struct {
	wildcard bool
	values   map[int]bool
}

// matches returns true if the given value matches this cron field.
func (f field) matches(val int) bool {
	return f.wildcard || f.values[val]
}

// parseField parses a single cron field (e.g. "0", "*", "1,15", "*/5", "9-17").
func parseField(raw string, min, max int) (field, error) {
	if raw == "*" {
		return field{wildcard: true}, nil
	}

	values := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return field{}, fmt.Errorf("invalid step %q", s)
			}
			step = n
			part = base
		}

		lo, hi := min, max
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if lo, err = strconv.Atoi(a); err != nil {
				return field{}, fmt.Errorf("invalid range start %q: %w", a, err)
			}
			if hi, err = strconv.Atoi(b); err != nil {
				return field{}, fmt.Errorf("invalid range end %q: %w", b, err)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return field{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			lo, hi = v, v
		}

		if lo < min || hi > max || lo > hi {
			return field{}, fmt.Errorf("value %q out of range %d-%d", part, min, max)
		}
		for v := lo; v <= hi; v += step {
			values[v] = true
		}
	}
	return field{values: values}, nil
}

// fields holds five parsed cron fields.
type fields struct {
	minute     field
	hour       field
	dayOfMonth field
	month      field
	dayOfWeek  field
}

// matchesTime returns true if the given time matches all five cron fields.
func (c fields) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

func parseFields(expr string) (fields, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return fields{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(parts))
	}

	bounds := [5]struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day-of-month", 1, 31},
		{"month", 1, 12},
		{"day-of-week", 0, 6},
	}
	var parsed [5]field
	for i, b := range bounds {
		f, err := parseField(parts[i], b.min, b.max)
		if err != nil {
			return fields{}, fmt.Errorf("parsing %s field: %w", b.name, err)
		}
		parsed[i] = f
	}

	return fields{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

// Next searches minute-by-minute up to one year ahead. A zero time means the
// expression never fires (e.g. February 30th).
func (c fields) Next(after time.Time) time.Time {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if c.matchesTime(candidate) {
			return candidate
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}
}
