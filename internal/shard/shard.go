// Package shard maps messages onto one of a queue's shard rows.
package shard

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Target is what a Policy sees of a message being enqueued.
type Target struct {
	DueTime  time.Time
	Priority uint8
	Key      string
}

// Policy picks a shard in [0, shardCount). Implementations must be pure.
type Policy interface {
	Name() string
	ShardFor(t Target, shardCount int) int
}

// TimeModulo assigns shards by due time in whole seconds modulo the shard
// count.
//
// This assumes the low-order bits of due seconds are well spread. Messages
// sharing a due second always land on the same shard, so bursty schedules
// (many jobs due at the same instant) concentrate on one row. It is a
// load-spreading heuristic, not a uniform hash; use KeyHash when producers
// can supply a key.
type TimeModulo struct{}

func (TimeModulo) Name() string { return "time-modulo" }

func (TimeModulo) ShardFor(t Target, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	s := t.DueTime.Unix() % int64(shardCount)
	if s < 0 {
		s += int64(shardCount)
	}
	return int(s)
}

// KeyHash assigns shards by FNV-1a of Target.Key. Messages without a key fall
// back to TimeModulo.
type KeyHash struct{}

func (KeyHash) Name() string { return "key-hash" }

func (KeyHash) ShardFor(t Target, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	if t.Key == "" {
		return TimeModulo{}.ShardFor(t, shardCount)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(t.Key))
	return int(h.Sum32() % uint32(shardCount))
}

// Func adapts a plain function into a Policy.
type Func func(t Target, shardCount int) int

func (Func) Name() string { return "custom" }

func (f Func) ShardFor(t Target, shardCount int) int { return f(t, shardCount) }

// ByName returns the built-in policy called name.
func ByName(name string) (Policy, error) {
	switch name {
	case "", "time-modulo":
		return TimeModulo{}, nil
	case "key-hash":
		return KeyHash{}, nil
	default:
		return nil, fmt.Errorf("shard: unknown policy %q", name)
	}
}
