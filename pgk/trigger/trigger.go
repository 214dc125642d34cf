// Package trigger computes fire instants for job triggers.
package trigger

import (
	"sync"
	"time"

	"github.com/RezaEskandarii/jobfire/types"
	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

var schedules sync.Map // expression -> cron.Schedule

func parseCron(expr string) (cron.Schedule, error) {
	if s, ok := schedules.Load(expr); ok {
		return s.(cron.Schedule), nil
	}
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	schedules.Store(expr, s)
	return s, nil
}

// NextFireAfter returns the earliest fire instant strictly after ref.
// The second result is false when the trigger will never fire again.
// Cron expressions are evaluated in ref's location.
func NextFireAfter(t types.Trigger, ref time.Time) (time.Time, bool) {
	switch v := t.(type) {
	case types.CronTrigger:
		s, err := parseCron(v.Expression)
		if err != nil {
			return time.Time{}, false
		}
		next := s.Next(ref)
		if next.IsZero() {
			return time.Time{}, false
		}
		return next, true
	case types.IntervalTrigger:
		if v.Minutes <= 0 {
			return time.Time{}, false
		}
		return ref.Add(v.Interval()), true
	case types.OneTimeTrigger:
		if v.At.After(ref) {
			return v.At, true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// Validate rejects triggers that could never be evaluated.
func Validate(t types.Trigger) error {
	switch v := t.(type) {
	case types.CronTrigger:
		_, err := parseCron(v.Expression)
		return err
	case types.IntervalTrigger:
		if v.Minutes <= 0 {
			return errors.Newf("interval must be > 0 minutes, got %d", v.Minutes)
		}
		return nil
	case types.OneTimeTrigger:
		if v.At.IsZero() {
			return errors.New("one-time trigger needs an instant")
		}
		return nil
	case nil:
		return errors.New("trigger is required")
	}
	return errors.Newf("unsupported trigger %T", t)
}

// Resume picks the instant to arm after a process restart. A stored next fire
// time wins even when it is already past, which yields a single catch-up fire.
func Resume(t types.Trigger, storedNext *time.Time, now time.Time) (time.Time, bool) {
	if storedNext != nil && !storedNext.IsZero() {
		return *storedNext, true
	}
	return NextFireAfter(t, now)
}

// Preview lists up to n upcoming fire instants after ref.
func Preview(t types.Trigger, ref time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		next, ok := NextFireAfter(t, ref)
		if !ok {
			break
		}
		out = append(out, next)
		ref = next
	}
	return out
}
