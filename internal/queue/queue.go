package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/rzbill/shardq/internal/entry"
	"github.com/rzbill/shardq/internal/metrics"
	"github.com/rzbill/shardq/internal/shard"
	"github.com/rzbill/shardq/internal/storage"
	"github.com/rzbill/shardq/pkg/id"
	"github.com/rzbill/shardq/pkg/log"
)

// Options tunes a Queue handle. Options are copied on open and never mutated
// afterwards.
type Options struct {
	// Policy routes messages to shards. Defaults to shard.TimeModulo.
	Policy shard.Policy
	// Clock supplies "now". Defaults to the wall clock.
	Clock   clock.Clock
	Logger  log.Logger
	Metrics *metrics.Metrics
	// Consistency is requested for every mutation the queue issues.
	Consistency storage.Consistency
}

func (o Options) withDefaults() Options {
	if o.Policy == nil {
		o.Policy = shard.TimeModulo{}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = log.NewNop()
	}
	return o
}

// Queue is a handle on one named queue. It is safe for concurrent use.
type Queue struct {
	name   string
	store  storage.Store
	opts   Options
	logger log.Logger
	meta   atomic.Pointer[Metadata]
	ids    *id.Generator
}

// Create provisions a queue. Zero fields of meta take the package defaults.
func Create(ctx context.Context, store storage.Store, name string, meta Metadata, opts Options) (*Queue, error) {
	if err := storage.ValidateRow(name); err != nil {
		return nil, err
	}
	q := newQueue(store, name, opts)
	if _, err := q.loadMetadata(ctx); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrQueueExists, name)
	} else if !errors.Is(err, ErrQueueNotFound) {
		return nil, err
	}

	meta = meta.withDefaults(name)
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = q.opts.Clock.Now()
	}
	if err := q.writeMetadata(ctx, meta); err != nil {
		return nil, err
	}
	q.logger.Info("queue created",
		log.Int("shards", meta.ShardCount),
		log.Dur("lease", meta.LeaseDuration),
		log.Str("poison", meta.PoisonLocation),
	)
	return q, nil
}

// Open attaches to an existing queue.
func Open(ctx context.Context, store storage.Store, name string, opts Options) (*Queue, error) {
	if err := storage.ValidateRow(name); err != nil {
		return nil, err
	}
	q := newQueue(store, name, opts)
	if _, err := q.loadMetadata(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// OpenOrCreate opens name, creating it with meta when it does not exist.
func OpenOrCreate(ctx context.Context, store storage.Store, name string, meta Metadata, opts Options) (*Queue, error) {
	q, err := Open(ctx, store, name, opts)
	if errors.Is(err, ErrQueueNotFound) {
		return Create(ctx, store, name, meta, opts)
	}
	return q, err
}

func newQueue(store storage.Store, name string, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		name:   name,
		store:  store,
		opts:   opts,
		logger: opts.Logger.WithComponent("queue").With(log.Str("queue", name)),
		ids:    id.NewGenerator(),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Metadata returns the cached metadata.
func (q *Queue) Metadata() Metadata { return *q.meta.Load() }

// Reload re-reads the metadata row, picking up changes made by other
// processes.
func (q *Queue) Reload(ctx context.Context) (Metadata, error) {
	return q.loadMetadata(ctx)
}

// UpdateMetadata replaces the queue configuration. Shard counts may grow but
// not shrink, since messages in dropped shards would never be scanned again.
func (q *Queue) UpdateMetadata(ctx context.Context, meta Metadata) error {
	cur, err := q.loadMetadata(ctx)
	if err != nil {
		return err
	}
	meta = meta.withDefaults(q.name)
	meta.CreatedAt = cur.CreatedAt
	if meta.ShardCount < cur.ShardCount {
		return fmt.Errorf("%w: cannot shrink from %d to %d shards", ErrInvalidMetadata, cur.ShardCount, meta.ShardCount)
	}
	if err := q.writeMetadata(ctx, meta); err != nil {
		return err
	}
	q.logger.Info("queue metadata updated", log.Int("shards", meta.ShardCount), log.Dur("lease", meta.LeaseDuration))
	return nil
}

func (q *Queue) loadMetadata(ctx context.Context) (Metadata, error) {
	col := entry.NewMetadata().Bytes()
	value, ok, err := getColumn(ctx, q.store, MetaRow(q.name), col)
	if err != nil {
		return Metadata{}, q.fail("load metadata", err)
	}
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %s", ErrQueueNotFound, q.name)
	}
	meta, err := unmarshalMetadata(value)
	if err != nil {
		return Metadata{}, q.fail("decode metadata", err)
	}
	if err := meta.Validate(q.name); err != nil {
		return Metadata{}, q.fail("decode metadata", err)
	}
	q.meta.Store(&meta)
	return meta, nil
}

func (q *Queue) writeMetadata(ctx context.Context, meta Metadata) error {
	if err := meta.Validate(q.name); err != nil {
		return err
	}
	b, err := meta.marshal()
	if err != nil {
		return err
	}
	muts := []storage.Mutation{{Row: MetaRow(q.name), Column: entry.NewMetadata().Bytes(), Value: b}}
	if err := q.store.BatchMutate(ctx, muts, q.opts.Consistency); err != nil {
		return q.fail("write metadata", err)
	}
	q.meta.Store(&meta)
	return nil
}

// Clock returns the clock the queue stamps due times and locks with.
func (q *Queue) Clock() clock.Clock { return q.opts.Clock }

// Producer returns a producer bound to q.
func (q *Queue) Producer() *Producer { return &Producer{q: q} }

// Consumer returns a consumer identified by consumerID. An empty ID gets a
// random one.
func (q *Queue) Consumer(consumerID string) *Consumer { return newConsumer(q, consumerID) }

func (q *Queue) shardRow(i int) string { return ShardRow(q.name, i) }

func (q *Queue) checkShard(i int) error {
	if n := q.Metadata().ShardCount; i < 0 || i >= n {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidShard, i, n)
	}
	return nil
}

// fail wraps a backend error in *QueueError and counts it. Context errors
// pass through untouched.
func (q *Queue) fail(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	q.opts.Metrics.Failed(q.name, op)
	return &QueueError{Queue: q.name, Op: op, Err: err}
}

// getColumn reads exactly one column.
func getColumn(ctx context.Context, s storage.Store, row string, col []byte) ([]byte, bool, error) {
	end := append(append([]byte(nil), col...), 0)
	cols, err := s.Get(ctx, row, storage.Range{Start: col, End: end, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(cols) == 0 {
		return nil, false, nil
	}
	return cols[0].Value, true, nil
}
