package trigger

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the tagged JSON form of every variant. Times are unix
// microseconds, matching entry timestamps; durations are nanoseconds so
// they survive a round trip exactly.
type envelope struct {
	Kind           Kind   `json:"kind"`
	TriggerTimeUs  int64  `json:"triggerTimeUs"`
	ExecutionCount int64  `json:"executionCount,omitempty"`
	DelayNs        int64  `json:"delayNs,omitempty"`
	IntervalNs     int64  `json:"intervalNs,omitempty"`
	RepeatCount    int64  `json:"repeatCount,omitempty"`
	EndTimeUs      int64  `json:"endTimeUs,omitempty"`
	Expr           string `json:"expr,omitempty"`
}

// Marshal encodes t with its kind tag. A nil trigger encodes as JSON null.
func Marshal(t Trigger) ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	env := envelope{Kind: t.Kind(), TriggerTimeUs: t.TriggerTime().UnixMicro(), ExecutionCount: t.ExecutionCount()}
	switch v := t.(type) {
	case OneShot:
	case Repeating:
		env.DelayNs = int64(v.Delay)
		env.IntervalNs = int64(v.Interval)
		env.RepeatCount = v.RepeatCount
		env.EndTimeUs = unixMicro(v.EndTime)
	case Cron:
		env.Expr = v.Expr
		env.RepeatCount = v.RepeatCount
		env.EndTimeUs = unixMicro(v.EndTime)
	default:
		return nil, fmt.Errorf("trigger: cannot marshal %T", t)
	}
	return json.Marshal(env)
}

// Unmarshal decodes the output of Marshal. JSON null yields a nil Trigger.
func Unmarshal(b []byte) (Trigger, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}
	at := time.UnixMicro(env.TriggerTimeUs)
	switch env.Kind {
	case KindOneShot:
		return OneShot{At: at}, nil
	case KindRepeating:
		if time.Duration(env.IntervalNs) < MinInterval {
			return nil, ErrInvalidInterval
		}
		return Repeating{
			RepeatingConfig: RepeatingConfig{
				Delay:       time.Duration(env.DelayNs),
				Interval:    time.Duration(env.IntervalNs),
				RepeatCount: env.RepeatCount,
				EndTime:     fromUnixMicro(env.EndTimeUs),
			},
			At:         at,
			Executions: env.ExecutionCount,
		}, nil
	case KindCron:
		return Cron{
			CronConfig: CronConfig{Expr: env.Expr, RepeatCount: env.RepeatCount, EndTime: fromUnixMicro(env.EndTimeUs)},
			At:         at,
			Executions: env.ExecutionCount,
		}, nil
	default:
		return nil, fmt.Errorf("trigger: unknown kind %q", env.Kind)
	}
}

func unixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromUnixMicro(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us)
}
