package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Kind tags a Trigger variant on the wire.
type Kind string

const (
	KindOneShot   Kind = "oneshot"
	KindRepeating Kind = "repeating"
	KindCron      Kind = "cron"
)

// Trigger is a scheduling descriptor.
type Trigger interface {
	Kind() Kind
	// TriggerTime is the instant this occurrence is due.
	TriggerTime() time.Time
	// ExecutionCount is the number of occurrences before this one.
	ExecutionCount() int64
	// Next returns the following occurrence, or false when none remains.
	Next(now time.Time) (Trigger, bool)
}

// OneShot fires exactly once.
type OneShot struct {
	At time.Time
}

// NewOneShot returns a trigger due at now+delay. Negative delays are treated
// as zero.
func NewOneShot(now time.Time, delay time.Duration) OneShot {
	if delay < 0 {
		delay = 0
	}
	return OneShot{At: now.Add(delay)}
}

func (t OneShot) Kind() Kind                     { return KindOneShot }
func (t OneShot) TriggerTime() time.Time         { return t.At }
func (t OneShot) ExecutionCount() int64          { return 0 }
func (t OneShot) Next(time.Time) (Trigger, bool) { return nil, false }

// RepeatingConfig describes a fixed-rate schedule. Zero RepeatCount and zero
// EndTime mean unbounded.
type RepeatingConfig struct {
	Delay       time.Duration
	Interval    time.Duration
	RepeatCount int64
	EndTime     time.Time
}

// Repeating fires every Interval starting at now+Delay.
type Repeating struct {
	RepeatingConfig
	At         time.Time
	Executions int64
}

// MinInterval is the smallest repeating interval. Due times have microsecond
// resolution, so a shorter interval could not advance them.
const MinInterval = time.Microsecond

// ErrInvalidInterval is returned for repeating schedules whose interval is
// below MinInterval.
var ErrInvalidInterval = errors.New("trigger: interval must be at least 1µs")

// NewRepeating returns the first occurrence of cfg.
func NewRepeating(now time.Time, cfg RepeatingConfig) (Repeating, error) {
	if cfg.Interval < MinInterval {
		return Repeating{}, ErrInvalidInterval
	}
	if cfg.RepeatCount < 0 {
		return Repeating{}, fmt.Errorf("trigger: negative repeat count %d", cfg.RepeatCount)
	}
	at := now
	if cfg.Delay > 0 {
		at = now.Add(cfg.Delay)
	}
	return Repeating{RepeatingConfig: cfg, At: at}, nil
}

func (t Repeating) Kind() Kind             { return KindRepeating }
func (t Repeating) TriggerTime() time.Time { return t.At }
func (t Repeating) ExecutionCount() int64  { return t.Executions }

func (t Repeating) Next(now time.Time) (Trigger, bool) {
	next, ok := advance(t.RepeatCount, t.EndTime, t.Executions, t.At.Add(t.Interval), now)
	if !ok {
		return nil, false
	}
	t.At = next
	t.Executions++
	return t, true
}

// advance applies the shared termination rules and returns nextTime when the
// schedule continues.
func advance(repeatCount int64, endTime time.Time, executions int64, nextTime, now time.Time) (time.Time, bool) {
	if repeatCount > 0 && executions+1 >= repeatCount {
		return time.Time{}, false
	}
	if !endTime.IsZero() && (nextTime.After(endTime) || now.After(endTime)) {
		return time.Time{}, false
	}
	return nextTime, true
}

// CronConfig describes a cron schedule. Zero RepeatCount and zero EndTime mean
// unbounded.
type CronConfig struct {
	Expr        string
	RepeatCount int64
	EndTime     time.Time
}

// Cron fires on every tick of Expr.
type Cron struct {
	CronConfig
	At         time.Time
	Executions int64
}

// NewCron returns the first tick of cfg.Expr strictly after now.
func NewCron(now time.Time, cfg CronConfig) (Cron, error) {
	if !gronx.IsValid(cfg.Expr) {
		return Cron{}, fmt.Errorf("trigger: invalid cron expression %q", cfg.Expr)
	}
	at, err := gronx.NextTickAfter(cfg.Expr, now, false)
	if err != nil {
		return Cron{}, fmt.Errorf("trigger: next tick of %q: %w", cfg.Expr, err)
	}
	return Cron{CronConfig: cfg, At: at}, nil
}

func (t Cron) Kind() Kind             { return KindCron }
func (t Cron) TriggerTime() time.Time { return t.At }
func (t Cron) ExecutionCount() int64  { return t.Executions }

func (t Cron) Next(now time.Time) (Trigger, bool) {
	tick, err := gronx.NextTickAfter(t.Expr, t.At, false)
	if err != nil {
		return nil, false
	}
	next, ok := advance(t.RepeatCount, t.EndTime, t.Executions, tick, now)
	if !ok {
		return nil, false
	}
	t.At = next
	t.Executions++
	return t, true
}
