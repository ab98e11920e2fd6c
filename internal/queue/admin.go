package queue

import (
	"context"
	"fmt"

	"github.com/rzbill/shardq/internal/entry"
	"github.com/rzbill/shardq/internal/storage"
	"github.com/rzbill/shardq/pkg/log"
)

// scanPage bounds how many columns admin scans read per call.
const scanPage = 1024

// compactor is implemented by stores that can reclaim space after bulk
// deletes.
type compactor interface {
	CompactRow(ctx context.Context, row string) error
}

// ShardCounts returns the number of stored messages per shard, due or not.
func (q *Queue) ShardCounts(ctx context.Context) ([]int, error) {
	count := q.Metadata().ShardCount
	out := make([]int, count)
	for i := 0; i < count; i++ {
		n, err := q.countRow(ctx, q.shardRow(i), entry.TypePrefix(entry.TypeMessage))
		if err != nil {
			return nil, q.fail("count", err)
		}
		out[i] = n
	}
	return out, nil
}

// MessageCount returns the number of stored messages across all shards.
func (q *Queue) MessageCount(ctx context.Context) (int, error) {
	counts, err := q.ShardCounts(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// PoisonCount returns the number of messages in the poison row.
func (q *Queue) PoisonCount(ctx context.Context) (int, error) {
	n, err := q.countRow(ctx, q.Metadata().PoisonLocation, nil)
	if err != nil {
		return 0, q.fail("count", err)
	}
	return n, nil
}

func (q *Queue) countRow(ctx context.Context, row string, prefix []byte) (int, error) {
	total := 0
	err := q.walk(ctx, row, prefix, func(cols []storage.Column) error {
		total += len(cols)
		return nil
	})
	return total, err
}

// walk pages through the columns of row under prefix.
func (q *Queue) walk(ctx context.Context, row string, prefix []byte, fn func([]storage.Column) error) error {
	r := storage.Range{Prefix: prefix, Limit: scanPage}
	for {
		cols, err := q.store.Get(ctx, row, r)
		if err != nil {
			return err
		}
		if len(cols) > 0 {
			if err := fn(cols); err != nil {
				return err
			}
		}
		if len(cols) < scanPage {
			return nil
		}
		last := cols[len(cols)-1].Name
		r.Start = append(append([]byte(nil), last...), 0)
	}
}

// PoisonMessages lists up to n poisoned messages in entry order.
func (q *Queue) PoisonMessages(ctx context.Context, n int) ([]*Message, error) {
	if n <= 0 {
		return nil, nil
	}
	cols, err := q.store.Get(ctx, q.Metadata().PoisonLocation, storage.Range{Limit: n})
	if err != nil {
		return nil, q.fail("poison list", err)
	}
	out := make([]*Message, 0, len(cols))
	for _, col := range cols {
		e, err := entry.Decode(col.Name)
		if err != nil {
			continue
		}
		m, err := decodeValue(e, col.Value)
		if err != nil {
			q.logger.Warn("skipping corrupt poison entry", log.Str("id", e.String()), log.Err(err))
			continue
		}
		m.Shard = -1
		out = append(out, m)
	}
	return out, nil
}

// Lookup loads the stored message id from shard idx.
func (q *Queue) Lookup(ctx context.Context, idx int, id string) (*Message, error) {
	if err := q.checkShard(idx); err != nil {
		return nil, err
	}
	e, err := entry.Parse(id)
	if err != nil {
		return nil, err
	}
	if e.Type != entry.TypeMessage {
		return nil, fmt.Errorf("%w: %s is a %s entry", ErrMessageNotFound, id, e.Type)
	}
	value, ok, err := getColumn(ctx, q.store, q.shardRow(idx), e.Bytes())
	if err != nil {
		return nil, q.fail("lookup", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	m, err := decodeValue(e, value)
	if err != nil {
		return nil, err
	}
	m.Shard = idx
	return m, nil
}

// DeleteMessage removes message id and its locks from whichever shard holds
// it, without acking or rescheduling. It reports whether anything was found.
func (q *Queue) DeleteMessage(ctx context.Context, id string) (bool, error) {
	e, err := entry.Parse(id)
	if err != nil {
		return false, err
	}
	for i := 0; i < q.Metadata().ShardCount; i++ {
		row := q.shardRow(i)
		_, ok, err := getColumn(ctx, q.store, row, e.Bytes())
		if err != nil {
			return false, q.fail("delete", err)
		}
		if !ok {
			continue
		}
		muts := []storage.Mutation{{Row: row, Column: e.Bytes(), Delete: true}}
		locks, err := q.store.Get(ctx, row, storage.PrefixRange(entry.LockPrefix(e)))
		if err != nil {
			return false, q.fail("delete", err)
		}
		for _, l := range locks {
			muts = append(muts, storage.Mutation{Row: row, Column: l.Name, Delete: true})
		}
		if err := q.store.BatchMutate(ctx, muts, q.opts.Consistency); err != nil {
			return false, q.fail("delete", err)
		}
		q.logger.Info("message deleted", log.Str("id", id), log.Int("shard", i))
		return true, nil
	}
	return false, nil
}

// Clear deletes every message and lock from all shards. With poison set the
// poison row is emptied as well. It returns the number of columns removed.
func (q *Queue) Clear(ctx context.Context, poison bool) (int, error) {
	rows := make([]string, 0, q.Metadata().ShardCount+1)
	for i := 0; i < q.Metadata().ShardCount; i++ {
		rows = append(rows, q.shardRow(i))
	}
	if poison {
		rows = append(rows, q.Metadata().PoisonLocation)
	}
	removed := 0
	for _, row := range rows {
		err := q.walk(ctx, row, nil, func(cols []storage.Column) error {
			muts := make([]storage.Mutation, len(cols))
			for i, col := range cols {
				muts[i] = storage.Mutation{Row: row, Column: col.Name, Delete: true}
			}
			removed += len(cols)
			return q.store.BatchMutate(ctx, muts, q.opts.Consistency)
		})
		if err != nil {
			return removed, q.fail("clear", err)
		}
		if c, ok := q.store.(compactor); ok {
			if err := c.CompactRow(ctx, row); err != nil {
				q.logger.Warn("compaction after clear failed", log.Str("row", row), log.Err(err))
			}
		}
	}
	q.logger.Info("queue cleared", log.Int("removed", removed), log.F("poison", poison))
	return removed, nil
}
