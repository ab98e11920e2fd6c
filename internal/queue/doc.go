// Package queue implements a sharded, lease-locked job queue on top of an
// ordered wide-column store.
//
// A queue is a fixed set of shard rows plus a metadata row. Every message is
// one column whose name is the binary form of an entry.Entry, so a shard row
// lists messages by type, priority and due time. Producers write Message
// columns; consumers scan the due range of each shard and claim candidates by
// writing Lock columns next to them.
//
// Claiming is optimistic. A consumer writes its own Lock column (the entry's
// lock prefix followed by the consumer ID, valued with the lock time), reads
// back every Lock column under that prefix, and keeps the claim only when its
// lock is the sole unexpired one. Otherwise it deletes its lock and reports
// ErrBusyLock. Locks older than the queue's lease duration are ignored and
// removed, which is how work held by a crashed consumer is redelivered.
// Delivery is therefore at-least-once: handlers must tolerate duplicates.
//
// Acknowledging deletes the message column and re-enqueues the next
// occurrence of a recurring trigger. The delete happens before the write, so
// a crash in between drops the chain. Poison acknowledgement copies the
// message into the poison row before deleting it and never reschedules.
package queue
