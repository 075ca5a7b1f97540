package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ScheduleKind discriminates the three schedule forms.
type ScheduleKind string

const (
	KindAt    ScheduleKind = "at"
	KindEvery ScheduleKind = "every"
	KindCron  ScheduleKind = "cron"
)

// Schedule is a parsed task schedule. Exactly one of At, Every, or
// CronExpr drives it, indicated by Kind.
type Schedule struct {
	Kind     ScheduleKind  `json:"kind"`
	At       time.Time     `json:"at,omitempty"`
	Every    time.Duration `json:"every,omitempty"`
	CronExpr string        `json:"cron,omitempty"`
	Timezone string        `json:"timezone,omitempty"`
}

// Spec is the raw schedule input, as supplied by tools or config. At is a
// timestamp string (RFC 3339 or "2006-01-02 15:04").
type Spec struct {
	At       string        `yaml:"at" json:"at,omitempty"`
	Every    time.Duration `yaml:"every" json:"every,omitempty"`
	Cron     string        `yaml:"cron" json:"cron,omitempty"`
	Timezone string        `yaml:"timezone" json:"timezone,omitempty"`
}

// NewSchedule parses a spec. Precedence when several fields are set:
// at, then every, then cron.
func NewSchedule(spec Spec) (Schedule, error) {
	atValue := strings.TrimSpace(spec.At)
	cronExpr := strings.TrimSpace(spec.Cron)
	if atValue == "" && spec.Every == 0 && cronExpr == "" {
		return Schedule{}, fmt.Errorf("schedule requires at, every, or cron")
	}

	sched := Schedule{
		Every:    spec.Every,
		CronExpr: cronExpr,
		Timezone: strings.TrimSpace(spec.Timezone),
	}

	if atValue != "" {
		at, err := parseAt(atValue, sched.Timezone)
		if err != nil {
			return Schedule{}, err
		}
		sched.Kind = KindAt
		sched.At = at
		return sched, nil
	}
	if sched.Every > 0 {
		sched.Kind = KindEvery
		return sched, nil
	}
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	sched.Kind = KindCron
	return sched, nil
}

// Next returns the next fire time after now. ok is false when the
// schedule has nothing left to fire.
func (s Schedule) Next(now time.Time) (next time.Time, ok bool, err error) {
	switch s.Kind {
	case KindAt:
		if s.At.IsZero() {
			return time.Time{}, false, fmt.Errorf("at schedule missing timestamp")
		}
		if now.After(s.At) {
			return time.Time{}, false, nil
		}
		return s.At, true, nil
	case KindEvery:
		if s.Every <= 0 {
			return time.Time{}, false, fmt.Errorf("every schedule missing duration")
		}
		return now.Add(s.Every), true, nil
	case KindCron:
		if s.CronExpr == "" {
			return time.Time{}, false, fmt.Errorf("cron schedule missing expression")
		}
		loc := now.Location()
		if s.Timezone != "" {
			if tz, tzErr := time.LoadLocation(s.Timezone); tzErr == nil {
				loc = tz
			}
		}
		parsed, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse cron expression: %w", err)
		}
		n := parsed.Next(now.In(loc))
		return n, !n.IsZero(), nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// Recurring reports whether the schedule can fire more than once.
func (s Schedule) Recurring() bool {
	return s.Kind == KindEvery || s.Kind == KindCron
}

// String renders the schedule for task listings.
func (s Schedule) String() string {
	switch s.Kind {
	case KindAt:
		return "at " + s.At.Format(time.RFC3339)
	case KindEvery:
		return "every " + s.Every.String()
	case KindCron:
		if s.Timezone != "" {
			return fmt.Sprintf("cron %q (%s)", s.CronExpr, s.Timezone)
		}
		return fmt.Sprintf("cron %q", s.CronExpr)
	default:
		return "unscheduled"
	}
}

func parseAt(value, tz string) (time.Time, error) {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			if parsed, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
				return parsed, nil
			}
			if parsed, err := time.ParseInLocation("2006-01-02 15:04", value, loc); err == nil {
				return parsed, nil
			}
		}
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	if parsed, err := time.Parse("2006-01-02 15:04", value); err == nil {
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("invalid at timestamp: %s", value)
}
