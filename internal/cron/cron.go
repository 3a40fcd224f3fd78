// Package cron implements the minimal cron-expression subset the worker
// schedules with: minute-interval expressions ("*/15 * * * *") and fixed
// daily times ("0 1 * * *"). Expressions are evaluated in a caller-supplied
// location so daily jobs respect server-local time.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed five-field cron expression restricted to the
// minute and hour fields; day, month, and weekday must be "*".
type Schedule struct {
	// everyMinute is N for "*/N" minute fields, 0 otherwise.
	everyMinute int

	// minute is the fixed minute for "M H" forms, -1 for "*".
	minute int

	// hour is the fixed hour, -1 for "*".
	hour int
}

// Parse parses a cron expression. Supported forms:
//
//	*/N * * * *    every N minutes
//	* * * * *      every minute
//	M H * * *      daily at H:M
//	M * * * *      hourly at minute M
func Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d in %q", len(fields), expr)
	}
	for _, f := range fields[2:] {
		if f != "*" {
			return nil, fmt.Errorf("cron: day/month/weekday fields must be * in %q", expr)
		}
	}

	s := &Schedule{minute: -1, hour: -1}

	minuteField, hourField := fields[0], fields[1]

	switch {
	case minuteField == "*":
		// every minute
	case strings.HasPrefix(minuteField, "*/"):
		n, err := strconv.Atoi(minuteField[2:])
		if err != nil || n < 1 || n > 59 {
			return nil, fmt.Errorf("cron: invalid minute interval %q", minuteField)
		}
		s.everyMinute = n
	default:
		m, err := strconv.Atoi(minuteField)
		if err != nil || m < 0 || m > 59 {
			return nil, fmt.Errorf("cron: invalid minute %q", minuteField)
		}
		s.minute = m
	}

	switch {
	case hourField == "*":
		// every hour
	default:
		if s.everyMinute != 0 {
			return nil, fmt.Errorf("cron: minute interval with fixed hour is not supported: %q", expr)
		}
		h, err := strconv.Atoi(hourField)
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("cron: invalid hour %q", hourField)
		}
		s.hour = h
	}

	return s, nil
}

// Next returns the first trigger time strictly after t, in t's location.
func (s *Schedule) Next(t time.Time) time.Time {
	// Truncate to whole minutes and step forward; the field space is small
	// enough that a bounded scan is simpler than closed-form arithmetic.
	next := t.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < 24*60+1; i++ {
		if s.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return next
}

func (s *Schedule) matches(t time.Time) bool {
	if s.everyMinute > 0 {
		return t.Minute()%s.everyMinute == 0
	}
	if s.minute >= 0 && t.Minute() != s.minute {
		return false
	}
	if s.hour >= 0 && t.Hour() != s.hour {
		return false
	}
	return true
}
