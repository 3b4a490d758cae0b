package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 5-field and 6-field (optional seconds) cron expressions
// plus descriptors like "@hourly" and "@every 55m".
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a schedule at registration time. Evaluation functions below
// assume a validated schedule and never return parse errors.
func (sc Schedule) Validate() error {
	switch sc.Kind {
	case KindCron:
		if strings.TrimSpace(sc.Expr) == "" {
			return fmt.Errorf("%w: cron expression required", ErrInvalidTask)
		}
		if _, err := cronParser.Parse(sc.Expr); err != nil {
			return fmt.Errorf("%w: cron expression %q: %v", ErrInvalidTask, sc.Expr, err)
		}
	case KindInterval:
		if sc.Every <= 0 {
			return fmt.Errorf("%w: interval must be positive", ErrInvalidTask)
		}
	case KindDate:
		if sc.At.IsZero() {
			return fmt.Errorf("%w: date required", ErrInvalidTask)
		}
	case KindImmediate:
		// no payload
	default:
		return fmt.Errorf("%w: unknown schedule kind", ErrInvalidTask)
	}
	return nil
}

// firstRun returns the initial due time for a freshly registered task, or
// false when the schedule yields no execution at all (a date already in the
// past). Pure: the result depends only on (sc, now).
func firstRun(sc Schedule, now time.Time) (time.Time, bool) {
	switch sc.Kind {
	case KindCron:
		return cronNext(sc.Expr, now)
	case KindInterval:
		return now.Add(sc.Every), true
	case KindDate:
		if sc.At.After(now) {
			return sc.At, true
		}
		return time.Time{}, false
	case KindImmediate:
		return now, true
	default:
		return time.Time{}, false
	}
}

// nextAfterRun returns the due time following a completed execution, or false
// when the schedule is exhausted. One-shot kinds (date, immediate) never
// recur: a date task runs once, and an immediate task runs once rather than
// re-arming on every tick.
func nextAfterRun(sc Schedule, now time.Time) (time.Time, bool) {
	switch sc.Kind {
	case KindCron:
		return cronNext(sc.Expr, now)
	case KindInterval:
		return now.Add(sc.Every), true
	case KindDate, KindImmediate:
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func cronNext(expr string, now time.Time) (time.Time, bool) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		// Validated at registration; an error here means the record was
		// tampered with on disk. Treat as exhausted.
		return time.Time{}, false
	}
	next := sched.Next(now)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}
