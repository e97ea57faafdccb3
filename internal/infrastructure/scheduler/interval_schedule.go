package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}

// CronSchedule adapts a robfig/cron schedule.
type CronSchedule struct {
	expr  string
	inner cron.Schedule
}

// Next returns the next activation after t.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.inner.Next(t)
}

func (s *CronSchedule) String() string {
	return s.expr
}

// ParseSchedule accepts a Go duration ("30s", "5m") or a standard 5-field
// cron expression, including descriptors such as "@hourly" and "@every 1m".
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if d, err := time.ParseDuration(expr); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("schedule interval must be positive, got %s", d)
		}
		return NewIntervalSchedule(d), nil
	}
	inner, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return &CronSchedule{expr: expr, inner: inner}, nil
}
