package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/shardq/internal/storage"
)

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch/write.
	FsyncModeAlways
	// FsyncModeInterval enables group-commit by allowing Pebble to coalesce WAL
	// syncs for operations within the configured interval.
	FsyncModeInterval
	// FsyncModeNever avoids forcing WAL syncs from the application.
	FsyncModeNever
)

// ParseFsyncMode maps "always", "interval" and "never" onto a FsyncMode.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch s {
	case "":
		return FsyncModeUnspecified, nil
	case "always":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	}
	return FsyncModeUnspecified, fmt.Errorf("pebble: unknown fsync mode %q", s)
}

// Options configures the Pebble store.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL for single-column writes and
	// batches at consistency One. Quorum and All batches always sync.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
	// Metrics observes read/write/commit latencies and sizes. Optional.
	Metrics MetricsHook
}

// MetricsHook is a minimal hook surface for storage observations.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveWrite(time.Duration, int)            {}
func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

// DB is a storage.Store over Pebble.
type DB struct {
	inner     *pebble.DB
	writeSync bool
	metrics   MetricsHook
	closed    atomic.Bool
}

var _ storage.Store = (*DB)(nil)

// Open creates or opens a Pebble database with the provided options.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	switch opts.Fsync {
	case FsyncModeAlways:
		// Sync is requested per commit.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.DataDir, err)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &DB{
		inner:     inner,
		writeSync: opts.Fsync == FsyncModeAlways,
		metrics:   metrics,
	}, nil
}

// Close closes the Pebble database. Closing twice is a no-op.
func (db *DB) Close() error {
	if db == nil || db.inner == nil || !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	return db.inner.Close()
}

func (db *DB) check(ctx context.Context) error {
	if db.closed.Load() {
		return storage.ErrClosed
	}
	return ctx.Err()
}

// rowPrefix is the key prefix shared by every column of row.
func rowPrefix(row string) []byte {
	p := make([]byte, 0, len(row)+1)
	p = append(p, row...)
	return append(p, 0)
}

func columnKey(row string, column []byte) []byte {
	return append(rowPrefix(row), column...)
}

// Put writes a single column.
func (db *DB) Put(ctx context.Context, row string, column, value []byte) error {
	return db.BatchMutate(ctx, []storage.Mutation{{Row: row, Column: column, Value: value}}, storage.One)
}

// Delete removes a single column.
func (db *DB) Delete(ctx context.Context, row string, column []byte) error {
	return db.BatchMutate(ctx, []storage.Mutation{{Row: row, Column: column, Delete: true}}, storage.One)
}

// BatchMutate applies muts in one Pebble batch. Quorum and All force a WAL
// sync regardless of the configured fsync mode.
func (db *DB) BatchMutate(ctx context.Context, muts []storage.Mutation, c storage.Consistency) error {
	if err := db.check(ctx); err != nil {
		return err
	}
	if len(muts) == 0 {
		return nil
	}
	b := db.inner.NewBatch()
	defer b.Close()
	for _, m := range muts {
		if err := storage.ValidateMutation(m); err != nil {
			return err
		}
		key := columnKey(m.Row, m.Column)
		var err error
		if m.Delete {
			err = b.Delete(key, nil)
		} else {
			err = b.Set(key, m.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("pebble: batch: %w", err)
		}
	}

	start := time.Now()
	size := b.Len()
	opt := pebble.NoSync
	if db.writeSync || c >= storage.Quorum {
		opt = pebble.Sync
	}
	if err := b.Commit(opt); err != nil {
		return fmt.Errorf("pebble: commit: %w", err)
	}
	if len(muts) == 1 {
		db.metrics.ObserveWrite(time.Since(start), size)
	} else {
		db.metrics.ObserveBatchCommit(time.Since(start), len(muts), size)
	}
	return nil
}

// Get returns the columns of row inside r in ascending order.
func (db *DB) Get(ctx context.Context, row string, r storage.Range) ([]storage.Column, error) {
	if err := db.check(ctx); err != nil {
		return nil, err
	}
	if err := storage.ValidateRow(row); err != nil {
		return nil, err
	}
	start := time.Now()
	prefix := rowPrefix(row)
	lo, hi := r.Bounds()
	iterOpts := &pebble.IterOptions{LowerBound: append(append([]byte(nil), prefix...), lo...)}
	if hi != nil {
		iterOpts.UpperBound = append(append([]byte(nil), prefix...), hi...)
	} else {
		iterOpts.UpperBound = storage.PrefixEnd(prefix)
	}
	it, err := db.inner.NewIter(iterOpts)
	if err != nil {
		return nil, fmt.Errorf("pebble: iter: %w", err)
	}
	defer it.Close()

	var (
		out   []storage.Column
		bytes int
	)
	for ok := it.First(); ok; ok = it.Next() {
		if r.Limit > 0 && len(out) >= r.Limit {
			break
		}
		key := it.Key()
		val, err := it.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("pebble: value: %w", err)
		}
		col := storage.Column{
			Name:  append([]byte(nil), key[len(prefix):]...),
			Value: append([]byte(nil), val...),
		}
		bytes += len(key) + len(val)
		out = append(out, col)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("pebble: iterate: %w", err)
	}
	db.metrics.ObserveRead(time.Since(start), bytes)
	return out, nil
}

// CompactRow requests compaction of every key of row. Queues call it after
// bulk deletes to drop tombstones.
func (db *DB) CompactRow(ctx context.Context, row string) error {
	if err := db.check(ctx); err != nil {
		return err
	}
	prefix := rowPrefix(row)
	return db.inner.Compact(prefix, storage.PrefixEnd(prefix), true)
}
