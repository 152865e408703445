// Package cron evaluates 5-field cron expressions in an IANA timezone.
package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// MaxPreview bounds PreviewRuns.
const MaxPreview = 100

var ErrInvalidCount = errors.New("preview count must be between 1 and 100")

// Evaluator answers next-run questions for trigger schedules.
type Evaluator struct {
	parser cron.Parser
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Schedule is a parsed expression bound to its location.
type Schedule struct {
	sched cron.Schedule
	loc   *time.Location
}

// Next returns the first activation strictly after the given instant, in UTC.
func (s *Schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc)).UTC()
}

// Parse compiles expression in timezone; an empty timezone means UTC.
func (e *Evaluator) Parse(expression, timezone string) (*Schedule, error) {
	sched, err := e.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return &Schedule{sched: sched, loc: loc}, nil
}

// Validate reports whether expression and timezone can be scheduled.
func (e *Evaluator) Validate(expression, timezone string) error {
	_, err := e.Parse(expression, timezone)
	return err
}

func (e *Evaluator) NextRun(expression, timezone string, after time.Time) (time.Time, error) {
	s, err := e.Parse(expression, timezone)
	if err != nil {
		return time.Time{}, err
	}
	next := s.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron %q never fires", expression)
	}
	return next, nil
}

// PreviewRuns returns the next count activations after from.
func (e *Evaluator) PreviewRuns(expression, timezone string, count int, from time.Time) ([]time.Time, error) {
	if count < 1 || count > MaxPreview {
		return nil, ErrInvalidCount
	}
	s, err := e.Parse(expression, timezone)
	if err != nil {
		return nil, err
	}
	runs := make([]time.Time, 0, count)
	cur := from
	for len(runs) < count {
		cur = s.Next(cur)
		if cur.IsZero() {
			break
		}
		runs = append(runs, cur)
	}
	return runs, nil
}
