// Package sla holds the business calendar and priority rules used to age
// support tickets.
package sla

import (
	"fmt"
	"time"
)

const (
	DefaultWorkStartHour = 9
	DefaultWorkEndHour   = 18
)

// Calendar describes the working window: Monday through Friday between
// StartHour (inclusive) and EndHour (exclusive) in Location.
type Calendar struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// DefaultCalendar is the 09:00-18:00 weekday calendar in server local time.
func DefaultCalendar() Calendar {
	return Calendar{
		StartHour: DefaultWorkStartHour,
		EndHour:   DefaultWorkEndHour,
		Location:  time.Local,
	}
}

// NewCalendar validates the window and returns a Calendar.
func NewCalendar(startHour, endHour int, loc *time.Location) (Calendar, error) {
	if startHour < 0 || startHour > 23 {
		return Calendar{}, fmt.Errorf("work start hour %d out of range", startHour)
	}
	if endHour < 1 || endHour > 24 {
		return Calendar{}, fmt.Errorf("work end hour %d out of range", endHour)
	}
	if endHour <= startHour {
		return Calendar{}, fmt.Errorf("work end hour %d must be after start hour %d", endHour, startHour)
	}
	if loc == nil {
		loc = time.Local
	}
	return Calendar{StartHour: startHour, EndHour: endHour, Location: loc}, nil
}

// HoursPerDay is the length of one working window.
func (c Calendar) HoursPerDay() int {
	return c.EndHour - c.StartHour
}

// IsWorkingDay reports whether t falls on Monday through Friday.
func (c Calendar) IsWorkingDay(t time.Time) bool {
	wd := t.In(c.location()).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// ElapsedHours returns the fractional business hours between start and end.
// An end before start yields 0.
func (c Calendar) ElapsedHours(start, end time.Time) float64 {
	loc := c.location()
	start = start.In(loc)
	end = end.In(loc)
	if !start.Before(end) {
		return 0
	}

	var total time.Duration
	current := start
	for current.Before(end) {
		y, m, d := current.Date()
		if c.IsWorkingDay(current) {
			windowStart := time.Date(y, m, d, c.StartHour, 0, 0, 0, loc)
			windowEnd := time.Date(y, m, d, c.EndHour, 0, 0, 0, loc)
			from := later(windowStart, current)
			to := earlier(windowEnd, end)
			if from.Before(to) {
				total += to.Sub(from)
			}
		}
		current = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return total.Hours()
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
