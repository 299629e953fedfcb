// Package cron implements a five-field cron expression parser and the
// next-fire-time computation used by the scheduled trigger loop.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression: minute hour day-of-month month
// day-of-week. Standard cron semantics apply: when both day fields are
// restricted, a time matches if either field matches.
type Schedule struct {
	minutes [60]bool
	hours   [24]bool
	dom     [32]bool
	months  [13]bool
	dow     [7]bool

	domRestricted bool
	dowRestricted bool
}

type fieldSpec struct {
	name string
	min  int
	max  int
}

var fieldSpecs = []fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Parse parses a five-field cron expression. Supported syntax per field:
// "*", single values, ranges (a-b), steps (*/n, a-b/n) and comma lists.
func Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron %q: expected 5 fields, got %d", expr, len(fields))
	}

	s := &Schedule{}
	targets := []struct {
		set        []bool
		restricted *bool
	}{
		{s.minutes[:], nil},
		{s.hours[:], nil},
		{s.dom[:], &s.domRestricted},
		{s.months[:], nil},
		{s.dow[:], &s.dowRestricted},
	}

	for i, field := range fields {
		spec := fieldSpecs[i]
		restricted, err := parseField(field, spec, targets[i].set)
		if err != nil {
			return nil, fmt.Errorf("cron %q: %w", expr, err)
		}
		if targets[i].restricted != nil {
			*targets[i].restricted = restricted
		}
	}
	return s, nil
}

// parseField fills set for one field and reports whether the field is
// restricted (anything other than "*" or "*/1").
func parseField(field string, spec fieldSpec, set []bool) (bool, error) {
	restricted := false
	for _, part := range strings.Split(field, ",") {
		step := 1
		rangePart := part
		if idx := strings.Index(part, "/"); idx >= 0 {
			rangePart = part[:idx]
			n, err := strconv.Atoi(part[idx+1:])
			if err != nil || n <= 0 {
				return false, fmt.Errorf("%s: invalid step in %q", spec.name, part)
			}
			step = n
		}

		lo, hi := spec.min, spec.max
		switch {
		case rangePart == "*":
			if step > 1 {
				restricted = true
			}
		case strings.Contains(rangePart, "-"):
			bounds := strings.SplitN(rangePart, "-", 2)
			a, errA := strconv.Atoi(bounds[0])
			b, errB := strconv.Atoi(bounds[1])
			if errA != nil || errB != nil {
				return false, fmt.Errorf("%s: invalid range %q", spec.name, rangePart)
			}
			lo, hi = a, b
			restricted = true
		default:
			n, err := strconv.Atoi(rangePart)
			if err != nil {
				return false, fmt.Errorf("%s: invalid value %q", spec.name, rangePart)
			}
			lo, hi = n, n
			if idx := strings.Index(part, "/"); idx >= 0 {
				hi = spec.max // "n/step" means n-max/step
			}
			restricted = true
		}

		if lo < spec.min || hi > spec.max || lo > hi {
			return false, fmt.Errorf("%s: value out of range [%d,%d] in %q", spec.name, spec.min, spec.max, part)
		}
		// Sets are sized so values index directly (dom and month start at 1).
		for v := lo; v <= hi; v += step {
			set[v] = true
		}
	}
	return restricted, nil
}

// Next returns the first time strictly after t that matches the schedule,
// in t's location. Returns the zero time if nothing matches within five
// years (an unsatisfiable field combination, e.g. Feb 30).
func (s *Schedule) Next(t time.Time) time.Time {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !s.months[int(t.Month())] {
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
			continue
		}
		if !s.hours[t.Hour()] {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()).Add(time.Hour)
			continue
		}
		if !s.minutes[t.Minute()] {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

// dayMatches applies the standard cron day rule: if both day-of-month and
// day-of-week are restricted, either may match; otherwise the restricted
// one decides; unrestricted fields always match.
func (s *Schedule) dayMatches(t time.Time) bool {
	domOK := s.dom[t.Day()]
	dowOK := s.dow[int(t.Weekday())]
	if s.domRestricted && s.dowRestricted {
		return domOK || dowOK
	}
	if s.domRestricted {
		return domOK
	}
	if s.dowRestricted {
		return dowOK
	}
	return true
}
