package queue

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/shardq/internal/entry"
	"github.com/rzbill/shardq/internal/storage"
	"github.com/rzbill/shardq/pkg/log"
)

// Consumer claims, acknowledges and poisons messages under one identity.
// Consumers share nothing but the backend; any number may scan any shard.
type Consumer struct {
	q      *Queue
	id     string
	next   atomic.Uint64
	logger log.Logger
}

func newConsumer(q *Queue, consumerID string) *Consumer {
	if consumerID == "" {
		consumerID = uuid.NewString()
	}
	c := &Consumer{
		q:      q,
		id:     consumerID,
		logger: q.logger.With(log.Str("consumer", consumerID)),
	}
	// start scans at a random shard so fresh consumers spread out
	var seed [8]byte
	u := uuid.New()
	copy(seed[:], u[:8])
	c.next.Store(binary.BigEndian.Uint64(seed[:]))
	return c
}

// ID returns the consumer identity recorded in its Lock columns.
func (c *Consumer) ID() string { return c.id }

// ReadMessages claims up to n due messages, visiting shards sequentially from
// a rotating offset. It may return fewer than n. A call that claims nothing
// because every candidate was locked elsewhere returns a *BusyLockError.
//
// On a backend failure or cancellation the messages claimed so far are
// returned together with the error; they stay claimed until acked or until
// their lease expires.
func (c *Consumer) ReadMessages(ctx context.Context, n int) ([]*Message, error) {
	shards := c.rotation()
	return c.read(ctx, shards, n)
}

// ReadMessagesTimeout is ReadMessages bounded by timeout. When the timeout
// fires it returns whatever was claimed without an error.
func (c *Consumer) ReadMessagesTimeout(ctx context.Context, n int, timeout time.Duration) ([]*Message, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	msgs, err := c.read(tctx, c.rotation(), n)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = nil
	}
	return msgs, err
}

// ReadMessagesFromShard claims up to n due messages from a single shard.
func (c *Consumer) ReadMessagesFromShard(ctx context.Context, shardIdx, n int) ([]*Message, error) {
	if err := c.q.checkShard(shardIdx); err != nil {
		return nil, err
	}
	return c.read(ctx, []int{shardIdx}, n)
}

func (c *Consumer) rotation() []int {
	count := c.q.Metadata().ShardCount
	start := int(c.next.Add(1) % uint64(count))
	shards := make([]int, count)
	for i := range shards {
		shards[i] = (start + i) % count
	}
	return shards
}

func (c *Consumer) read(ctx context.Context, shards []int, n int) ([]*Message, error) {
	if n <= 0 {
		return nil, nil
	}
	q := c.q
	start := time.Now()
	defer func() { q.opts.Metrics.ObserveReadCall(q.name, time.Since(start)) }()

	var (
		claimed  []*Message
		lost     int
		lastBusy int
	)
	for _, idx := range shards {
		if len(claimed) >= n {
			break
		}
		if err := ctx.Err(); err != nil {
			return claimed, err
		}
		now := q.opts.Clock.Now()
		cands, err := c.q.scanShard(ctx, idx, n-len(claimed), now, true)
		if err != nil {
			return claimed, q.fail("scan", err)
		}
		for _, m := range cands {
			if len(claimed) >= n {
				break
			}
			if err := ctx.Err(); err != nil {
				return claimed, err
			}
			got, err := c.claim(ctx, m)
			switch {
			case errors.Is(err, ErrBusyLock):
				lost++
				lastBusy = idx
				q.opts.Metrics.Busy(q.name)
			case errors.Is(err, ErrMessageNotFound):
			case err != nil:
				return claimed, q.fail("claim", err)
			default:
				claimed = append(claimed, got)
			}
		}
	}
	q.opts.Metrics.Claimed(q.name, len(claimed))
	if len(claimed) == 0 && lost > 0 {
		if len(shards) > 1 {
			lastBusy = -1
		}
		return nil, &BusyLockError{Queue: q.name, Shard: lastBusy, Lost: lost}
	}
	return claimed, nil
}

// lockValue records when a lock was taken.
func lockValue(t time.Time) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(t.UnixMicro()))
}

func lockTime(v []byte) (time.Time, bool) {
	if len(v) != 8 {
		return time.Time{}, false
	}
	return time.UnixMicro(int64(binary.BigEndian.Uint64(v))), true
}

// lockOwner extracts the consumer ID suffix of a Lock column.
func lockOwner(col []byte) string {
	if len(col) <= entry.Len {
		return ""
	}
	return string(col[entry.Len:])
}

func (c *Consumer) lockColumn(e entry.Entry) []byte {
	return append(entry.LockPrefix(e), c.id...)
}

// expired reports whether the lock valued v no longer holds at now.
// Undecodable lock values count as expired.
func (q *Queue) expired(v []byte, now time.Time) bool {
	at, ok := lockTime(v)
	return !ok || now.Sub(at) > q.Metadata().LeaseDuration
}

// claim runs the optimistic lock protocol on one candidate.
func (c *Consumer) claim(ctx context.Context, m *Message) (*Message, error) {
	q := c.q
	row := q.shardRow(m.Shard)
	e := m.entry
	mine := c.lockColumn(e)

	if err := q.store.BatchMutate(ctx, []storage.Mutation{{Row: row, Column: mine, Value: lockValue(q.opts.Clock.Now())}}, q.opts.Consistency); err != nil {
		return nil, err
	}

	locks, err := q.store.Get(ctx, row, storage.PrefixRange(entry.LockPrefix(e)))
	if err != nil {
		return nil, err
	}
	now := q.opts.Clock.Now()
	var (
		held    bool
		busy    bool
		cleanup []storage.Mutation
	)
	for _, l := range locks {
		owner := lockOwner(l.Name)
		switch {
		case owner == c.id:
			held = true
		case q.expired(l.Value, now):
			cleanup = append(cleanup, storage.Mutation{Row: row, Column: l.Name, Delete: true})
		default:
			busy = true
		}
	}
	if busy || !held {
		cleanup = append(cleanup, storage.Mutation{Row: row, Column: mine, Delete: true})
	}
	if len(cleanup) > 0 {
		if err := q.store.BatchMutate(ctx, cleanup, q.opts.Consistency); err != nil {
			return nil, err
		}
	}
	if busy || !held {
		c.logger.Debug("claim lost", log.Str("id", m.ID))
		return nil, &BusyLockError{Queue: q.name, Shard: m.Shard, Lost: 1}
	}

	// the message may have been acked between scan and lock
	value, ok, err := getColumn(ctx, q.store, row, e.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := q.store.Delete(ctx, row, mine); err != nil {
			return nil, err
		}
		return nil, ErrMessageNotFound
	}
	fresh, err := decodeValue(e, value)
	if err != nil {
		q.opts.Metrics.Corrupt(q.name)
		c.logger.Warn("claimed entry is corrupt, releasing", log.Str("id", m.ID), log.Err(err))
		if err := q.store.Delete(ctx, row, mine); err != nil {
			return nil, err
		}
		return nil, ErrMessageNotFound
	}
	fresh.Shard = m.Shard
	c.logger.Debug("message claimed", log.Str("id", fresh.ID), log.Int("shard", fresh.Shard))
	return fresh, nil
}

// scanShard lists due messages of one shard in (priority, timestamp) order
// with a skip scan: find the next populated priority, then read its due
// range. With skipLocked, entries under an unexpired lock are left out.
func (q *Queue) scanShard(ctx context.Context, idx, n int, now time.Time, skipLocked bool) ([]*Message, error) {
	row := q.shardRow(idx)
	locked := map[string]bool{}
	if skipLocked {
		locks, err := q.store.Get(ctx, row, storage.PrefixRange(entry.TypePrefix(entry.TypeLock)))
		if err != nil {
			return nil, err
		}
		for _, l := range locks {
			if len(l.Name) < entry.Len || q.expired(l.Value, now) {
				continue
			}
			e, err := entry.Decode(l.Name[:entry.Len])
			if err != nil {
				continue
			}
			locked[string(e.MessageEntry().Bytes())] = true
		}
	}

	nowMicros := uint64(0)
	if us := now.UnixMicro(); us > 0 {
		nowMicros = uint64(us)
	}
	msgPrefix := entry.TypePrefix(entry.TypeMessage)
	var out []*Message
	for p := 0; p <= 0xff && len(out) < n; p++ {
		head, err := q.store.Get(ctx, row, storage.Range{Prefix: msgPrefix, Start: entry.PriorityPrefix(entry.TypeMessage, uint8(p)), Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(head) == 0 || len(head[0].Name) < 2 {
			break
		}
		p = int(head[0].Name[1])
		// page through the due range; skipped columns do not count toward n
		start := entry.PriorityPrefix(entry.TypeMessage, uint8(p))
		end := entry.DueBound(entry.TypeMessage, uint8(p), nowMicros)
		for len(out) < n {
			limit := n - len(out) + len(locked)
			cols, err := q.store.Get(ctx, row, storage.Range{Start: start, End: end, Limit: limit})
			if err != nil {
				return nil, err
			}
			for _, col := range cols {
				if len(out) >= n {
					break
				}
				if locked[string(col.Name)] {
					continue
				}
				e, err := entry.Decode(col.Name)
				if err != nil {
					q.logger.Warn("skipping undecodable column", log.Err(err), log.Int("shard", idx))
					continue
				}
				m, err := decodeValue(e, col.Value)
				if err != nil {
					q.opts.Metrics.Corrupt(q.name)
					q.logger.Warn("skipping corrupt message", log.Str("id", e.String()), log.Int("shard", idx), log.Err(err))
					continue
				}
				m.Shard = idx
				out = append(out, m)
			}
			if len(cols) < limit {
				break
			}
			last := cols[len(cols)-1].Name
			start = append(append(make([]byte, 0, len(last)+1), last...), 0x00)
		}
	}
	return out, nil
}

// PeekMessages lists up to n due messages across all shards without writing
// anything. Shards are scanned concurrently and merged in (priority,
// timestamp) order. Messages currently claimed are included.
func (c *Consumer) PeekMessages(ctx context.Context, n int) ([]*Message, error) {
	return c.q.Peek(ctx, n)
}

// Peek is PeekMessages without a consumer.
func (q *Queue) Peek(ctx context.Context, n int) ([]*Message, error) {
	if n <= 0 {
		return nil, nil
	}
	now := q.opts.Clock.Now()
	count := q.Metadata().ShardCount
	perShard := make([][]*Message, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			msgs, err := q.scanShard(gctx, i, n, now, false)
			perShard[i] = msgs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, q.fail("peek", err)
	}
	var out []*Message
	for _, msgs := range perShard {
		out = append(out, msgs...)
	}
	sort.SliceStable(out, func(i, j int) bool { return entry.Compare(out[i].entry, out[j].entry) < 0 })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// release deletes m's message column together with this consumer's lock and
// any expired locks. It reports whether this consumer still owns the claim:
// either its lock is present, or the message is still stored and no other
// consumer holds an unexpired lock on it (the lock was swept after the lease
// ran out but nobody took over).
func (c *Consumer) release(ctx context.Context, m *Message) (bool, error) {
	q := c.q
	row := q.shardRow(m.Shard)
	_, present, err := getColumn(ctx, q.store, row, m.entry.Bytes())
	if err != nil {
		return false, err
	}
	locks, err := q.store.Get(ctx, row, storage.PrefixRange(entry.LockPrefix(m.entry)))
	if err != nil {
		return false, err
	}
	now := q.opts.Clock.Now()
	held, contested := false, false
	muts := []storage.Mutation{{Row: row, Column: m.entry.Bytes(), Delete: true}}
	for _, l := range locks {
		switch {
		case lockOwner(l.Name) == c.id:
			held = true
			muts = append(muts, storage.Mutation{Row: row, Column: l.Name, Delete: true})
		case q.expired(l.Value, now):
			muts = append(muts, storage.Mutation{Row: row, Column: l.Name, Delete: true})
		default:
			contested = true
		}
	}
	if err := q.store.BatchMutate(ctx, muts, q.opts.Consistency); err != nil {
		return false, err
	}
	return held || (present && !contested), nil
}

// AckMessage deletes a claimed message. When its trigger recurs and this
// consumer still owns the claim, the next occurrence is enqueued afterwards.
// A consumer whose lease was taken over by another consumer, or whose
// message was already acked elsewhere, acks without rescheduling so the
// chain continues from the new owner only.
func (c *Consumer) AckMessage(ctx context.Context, m *Message) error {
	q := c.q
	if err := q.checkShard(m.Shard); err != nil {
		return err
	}
	owned, err := c.release(ctx, m)
	if err != nil {
		return q.fail("ack", err)
	}
	q.opts.Metrics.Acked(q.name)
	if !owned {
		c.logger.Warn("acked message claimed by another consumer", log.Str("id", m.ID))
		return nil
	}
	if m.Trigger == nil {
		return nil
	}
	next, ok := m.Trigger.Next(q.opts.Clock.Now())
	if !ok {
		return nil
	}
	again := &Message{
		Body:     m.Body,
		Priority: m.Priority,
		Trigger:  next,
		Key:      m.Key,
		Headers:  m.Headers,
	}
	if _, err := q.Producer().Enqueue(ctx, again); err != nil {
		return err
	}
	q.opts.Metrics.Rescheduled(q.name)
	c.logger.Debug("recurring message rescheduled", log.Str("id", m.ID), log.Str("next", again.ID))
	return nil
}

// AckMessages acks each message and returns every failure combined.
func (c *Consumer) AckMessages(ctx context.Context, msgs []*Message) error {
	var errs error
	for _, m := range msgs {
		errs = multierr.Append(errs, c.AckMessage(ctx, m))
	}
	return errs
}

// AckPoisonMessage copies m into the poison row and then removes it from its
// shard. The trigger is never consulted.
func (c *Consumer) AckPoisonMessage(ctx context.Context, m *Message) error {
	q := c.q
	if err := q.checkShard(m.Shard); err != nil {
		return err
	}
	value, err := encodeValue(m)
	if err != nil {
		return err
	}
	poison := q.Metadata().PoisonLocation
	if err := q.store.BatchMutate(ctx, []storage.Mutation{{Row: poison, Column: m.entry.Bytes(), Value: value}}, q.opts.Consistency); err != nil {
		return q.fail("poison", err)
	}
	if _, err := c.release(ctx, m); err != nil {
		return q.fail("poison", err)
	}
	q.opts.Metrics.Poisoned(q.name)
	c.logger.Info("message poisoned", log.Str("id", m.ID), log.Int("attempts", m.Attempts), log.Str("poison", poison))
	return nil
}
