package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rzbill/shardq/internal/entry"
	"github.com/rzbill/shardq/internal/shard"
	"github.com/rzbill/shardq/internal/storage"
	"github.com/rzbill/shardq/internal/trigger"
	"github.com/rzbill/shardq/pkg/log"
)

// Producer writes new messages. Entry keys are unique by construction, so
// producers never coordinate with each other or with consumers.
type Producer struct {
	q *Queue
}

// Enqueue writes m and returns its identifier. On success m.ID, m.Shard,
// m.EnqueuedAt and m.Trigger are filled in.
func (p *Producer) Enqueue(ctx context.Context, m *Message) (string, error) {
	q := p.q
	now := q.opts.Clock.Now()
	tr := m.Trigger
	if tr == nil {
		tr = trigger.NewOneShot(now, 0)
	}
	due := tr.TriggerTime()

	shardCount := q.Metadata().ShardCount
	idx := q.opts.Policy.ShardFor(shard.Target{DueTime: due, Priority: m.Priority, Key: m.Key}, shardCount)
	if idx < 0 || idx >= shardCount {
		return "", fmt.Errorf("%w: policy %s returned %d for %d shards", ErrInvalidShard, q.opts.Policy.Name(), idx, shardCount)
	}

	e := entry.NewMessage(m.Priority, q.ids.At(due), uuid.New())
	stored := *m
	stored.Trigger = tr
	stored.EnqueuedAt = now
	value, err := encodeValue(&stored)
	if err != nil {
		return "", fmt.Errorf("queue: encode message: %w", err)
	}

	muts := []storage.Mutation{{Row: q.shardRow(idx), Column: e.Bytes(), Value: value}}
	if err := q.store.BatchMutate(ctx, muts, q.opts.Consistency); err != nil {
		return "", q.fail("enqueue", err)
	}

	m.ID = e.String()
	m.Shard = idx
	m.Trigger = tr
	m.EnqueuedAt = now
	m.entry = e
	q.opts.Metrics.Enqueued(q.name)
	q.logger.Debug("message enqueued",
		log.Str("id", m.ID),
		log.Int("shard", idx),
		log.F("due", due),
	)
	return m.ID, nil
}

// EnqueueBatch enqueues msgs one by one. There is no cross-message atomicity:
// it stops at the first failure and returns the identifiers written so far.
func (p *Producer) EnqueueBatch(ctx context.Context, msgs []*Message) ([]string, error) {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		id, err := p.Enqueue(ctx, m)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
