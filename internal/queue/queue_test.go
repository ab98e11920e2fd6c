package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/shardq/internal/entry"
	"github.com/rzbill/shardq/internal/metrics"
	"github.com/rzbill/shardq/internal/storage"
	pebblestore "github.com/rzbill/shardq/internal/storage/pebble"
	"github.com/rzbill/shardq/pkg/log"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *pebblestore.DB
	clk     *clock.Mock
	metrics *metrics.Metrics
	q       *Queue
}

func newFixture(t *testing.T, meta Metadata, opts ...func(*Options)) *fixture {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	clk := clock.NewMock()
	clk.Set(t0)
	m := metrics.New(nil)
	o := Options{Clock: clk, Logger: log.NewNop(), Metrics: m}
	for _, fn := range opts {
		fn(&o)
	}
	q, err := Create(context.Background(), db, "jobs", meta, o)
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	return &fixture{db: db, clk: clk, metrics: m, q: q}
}

func TestCreateAndOpen(t *testing.T) {
	f := newFixture(t, Metadata{})
	ctx := context.Background()

	meta := f.q.Metadata()
	assert.Equal(t, DefaultShardCount, meta.ShardCount)
	assert.Equal(t, DefaultLeaseDuration, meta.LeaseDuration)
	assert.Equal(t, "jobs:poison", meta.PoisonLocation)
	assert.True(t, meta.CreatedAt.Equal(t0))

	_, err := Create(ctx, f.db, "jobs", Metadata{}, Options{})
	assert.ErrorIs(t, err, ErrQueueExists)

	q, err := Open(ctx, f.db, "jobs", Options{})
	require.NoError(t, err)
	assert.Equal(t, meta.ShardCount, q.Metadata().ShardCount)
	assert.Equal(t, meta.LeaseDuration, q.Metadata().LeaseDuration)

	_, err = Open(ctx, f.db, "missing", Options{})
	assert.ErrorIs(t, err, ErrQueueNotFound)

	q, err = OpenOrCreate(ctx, f.db, "other", Metadata{ShardCount: 2}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, q.Metadata().ShardCount)
}

func TestCreateRejectsBadMetadata(t *testing.T) {
	f := newFixture(t, Metadata{ShardCount: 1})
	ctx := context.Background()
	_, err := Create(ctx, f.db, "bad", Metadata{ShardCount: -1}, Options{})
	assert.ErrorIs(t, err, ErrInvalidMetadata)
	_, err = Create(ctx, f.db, "bad", Metadata{ShardCount: 2, PoisonLocation: "bad:1"}, Options{})
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestUpdateMetadata(t *testing.T) {
	f := newFixture(t, Metadata{ShardCount: 2, LeaseDuration: time.Second})
	ctx := context.Background()

	require.NoError(t, f.q.UpdateMetadata(ctx, Metadata{ShardCount: 4, LeaseDuration: time.Minute}))
	other, err := Open(ctx, f.db, "jobs", Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, other.Metadata().ShardCount)
	assert.Equal(t, time.Minute, other.Metadata().LeaseDuration)
	assert.True(t, other.Metadata().CreatedAt.Equal(t0))

	err = f.q.UpdateMetadata(ctx, Metadata{ShardCount: 3})
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	// another handle sees the change after reload
	require.NoError(t, other.UpdateMetadata(ctx, Metadata{ShardCount: 8}))
	meta, err := f.q.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, meta.ShardCount)
}

func TestSubMillisecondLeasePersists(t *testing.T) {
	f := newFixture(t, Metadata{ShardCount: 1, LeaseDuration: 750 * time.Microsecond})
	ctx := context.Background()

	q, err := Open(ctx, f.db, "jobs", Options{})
	require.NoError(t, err)
	assert.Equal(t, 750*time.Microsecond, q.Metadata().LeaseDuration)

	meta, err := f.q.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Microsecond, meta.LeaseDuration)
}

func TestMessageCounts(t *testing.T) {
	f := newFixture(t, Metadata{ShardCount: 4})
	ctx := context.Background()
	p := f.q.Producer()
	for i := 0; i < 6; i++ {
		f.clk.Add(time.Second)
		_, err := p.Enqueue(ctx, &Message{Body: []byte("x")})
		require.NoError(t, err)
	}
	counts, err := f.q.ShardCounts(ctx)
	require.NoError(t, err)
	assert.Len(t, counts, 4)
	// due seconds t0+1..t0+6 spread by time modulo
	assert.Equal(t, []int{1, 2, 2, 1}, rotateCounts(counts, t0))
	total, err := f.q.MessageCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, total)

	assert.Equal(t, 6.0, testutil.ToFloat64(f.metrics.EnqueueTotal.WithLabelValues("jobs")))
}

// rotateCounts reorders counts so index 0 is the shard of t0's second, making
// the assertion independent of the epoch offset.
func rotateCounts(counts []int, base time.Time) []int {
	n := len(counts)
	start := int(base.Unix() % int64(n))
	out := make([]int, n)
	for i := range out {
		out[i] = counts[(start+i)%n]
	}
	return out
}

func TestDeleteLookupAndClear(t *testing.T) {
	f := newFixture(t, Metadata{ShardCount: 2})
	ctx := context.Background()
	p := f.q.Producer()

	m := &Message{Body: []byte("a"), Key: "k", Headers: map[string]string{"trace": "1"}}
	id, err := p.Enqueue(ctx, m)
	require.NoError(t, err)

	got, err := f.q.Lookup(ctx, m.Shard, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got.Body)
	assert.Equal(t, "k", got.Key)
	assert.Equal(t, "1", got.Headers["trace"])

	_, err = f.q.Lookup(ctx, m.Shard, "1:2:3")
	assert.Error(t, err)

	ok, err := f.q.DeleteMessage(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.q.DeleteMessage(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.q.Lookup(ctx, m.Shard, id)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, err = p.EnqueueBatch(ctx, []*Message{{Body: []byte("1")}, {Body: []byte("2")}, {Body: []byte("3")}})
	require.NoError(t, err)
	removed, err := f.q.Clear(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	total, err := f.q.MessageCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMessageValueCodec(t *testing.T) {
	f := newFixture(t, Metadata{ShardCount: 1})
	m := &Message{Body: []byte("payload"), Priority: 3, Attempts: 2, Key: "k", EnqueuedAt: t0}
	_, err := f.q.Producer().Enqueue(context.Background(), m)
	require.NoError(t, err)

	b, err := encodeValue(m)
	require.NoError(t, err)
	got, err := decodeValue(m.Entry(), b)
	require.NoError(t, err)
	assert.Equal(t, m.Body, got.Body)
	assert.Equal(t, m.Priority, got.Priority)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, m.ID, got.ID)
	assert.True(t, got.Trigger.TriggerTime().Equal(t0))

	b[len(b)-5] ^= 0xff
	_, err = decodeValue(m.Entry(), b)
	assert.True(t, errors.Is(err, ErrCorruptValue))
	_, err = decodeValue(m.Entry(), []byte{1, 2})
	assert.ErrorIs(t, err, ErrCorruptValue)
}

func entryLockRange(m *Message) storage.Range {
	return storage.PrefixRange(entry.LockPrefix(m.Entry()))
}
