package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrBusyLock matches every *BusyLockError.
	ErrBusyLock = errors.New("queue: entry locked by another consumer")
	// ErrQueueNotFound is returned when a queue has no metadata row.
	ErrQueueNotFound = errors.New("queue: not found")
	// ErrQueueExists is returned when creating a queue that already exists.
	ErrQueueExists = errors.New("queue: already exists")
	// ErrInvalidShard is returned for shard indexes outside [0, shardCount).
	ErrInvalidShard = errors.New("queue: shard out of range")
	// ErrMessageNotFound is returned when an identifier names no stored message.
	ErrMessageNotFound = errors.New("queue: message not found")
	// ErrInvalidMetadata is returned for unusable queue settings.
	ErrInvalidMetadata = errors.New("queue: invalid metadata")
	// ErrCorruptValue is returned when a stored message fails its checksum or
	// header decode.
	ErrCorruptValue = errors.New("queue: corrupt message value")
)

// BusyLockError reports claims lost to other consumers. It is transient: the
// caller should move on and retry later, never spin on the same entry.
type BusyLockError struct {
	Queue string
	Shard int
	// Lost is how many candidates were held by someone else.
	Lost int
}

func (e *BusyLockError) Error() string {
	return fmt.Sprintf("queue %s: shard %d: %d candidate(s) locked by another consumer", e.Queue, e.Shard, e.Lost)
}

// Is makes errors.Is(err, ErrBusyLock) hold.
func (e *BusyLockError) Is(target error) bool { return target == ErrBusyLock }

// QueueError wraps a backend or schema failure. It is surfaced as is and not
// retried internally.
type QueueError struct {
	Queue string
	Op    string
	Err   error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s: %s: %v", e.Queue, e.Op, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }
