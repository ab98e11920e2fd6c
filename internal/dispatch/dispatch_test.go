package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/shardq/internal/metrics"
	"github.com/rzbill/shardq/internal/queue"
	pebblestore "github.com/rzbill/shardq/internal/storage/pebble"
	"github.com/rzbill/shardq/internal/trigger"
)

func newQueue(t *testing.T) (*queue.Queue, *clock.Mock) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	q, err := queue.Create(context.Background(), db, "work", queue.Metadata{ShardCount: 2}, queue.Options{Clock: clk})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return q, clk
}

func TestRunOnceAcksSuccesses(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := q.Producer().Enqueue(ctx, &queue.Message{Body: []byte{byte(i)}})
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen [][]byte
	)
	d := New(q, q.Consumer("w"), func(_ context.Context, m *queue.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, m.Body)
		return nil
	}, Config{Workers: 2, BatchSize: 10}, nil, metrics.New(nil))

	n, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, seen, 5)

	total, err := q.MessageCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	n, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailuresRetryThenPoison(t *testing.T) {
	q, clk := newQueue(t)
	ctx := context.Background()
	_, err := q.Producer().Enqueue(ctx, &queue.Message{Body: []byte("flaky")})
	require.NoError(t, err)

	var calls atomic.Int32
	d := New(q, q.Consumer("w"), func(context.Context, *queue.Message) error {
		calls.Add(1)
		return errors.New("boom")
	}, Config{MaxAttempts: 3, RetryBackoff: time.Second}, nil, nil)

	n, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// retry is due after one second, then two
	n, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	clk.Add(time.Second)
	n, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clk.Add(2 * time.Second)
	n, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 3, calls.Load())

	total, err := q.MessageCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
	poisoned, err := q.PoisonMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, poisoned, 1)
	assert.Equal(t, 3, poisoned[0].Attempts)
	assert.Equal(t, []byte("flaky"), poisoned[0].Body)
}

func TestPanicCountsAsFailure(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	_, err := q.Producer().Enqueue(ctx, &queue.Message{})
	require.NoError(t, err)

	d := New(q, q.Consumer("w"), func(context.Context, *queue.Message) error {
		panic("handler bug")
	}, Config{MaxAttempts: 1}, nil, nil)
	_, err = d.RunOnce(ctx)
	require.NoError(t, err)

	n, err := q.PoisonCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecurringFailureKeepsChain(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	tr, err := trigger.NewRepeating(q.Clock().Now(), trigger.RepeatingConfig{Interval: time.Hour})
	require.NoError(t, err)
	_, err = q.Producer().Enqueue(ctx, &queue.Message{Trigger: tr})
	require.NoError(t, err)

	d := New(q, q.Consumer("w"), func(context.Context, *queue.Message) error {
		return errors.New("nope")
	}, Config{MaxAttempts: 5}, nil, nil)
	_, err = d.RunOnce(ctx)
	require.NoError(t, err)

	// one-shot retry plus the next hourly occurrence
	total, err := q.MessageCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestBackoff(t *testing.T) {
	q, _ := newQueue(t)
	d := New(q, q.Consumer("w"), nil, Config{RetryBackoff: time.Second, MaxBackoff: 5 * time.Second}, nil, nil)
	assert.Equal(t, time.Second, d.backoff(1))
	assert.Equal(t, 2*time.Second, d.backoff(2))
	assert.Equal(t, 4*time.Second, d.backoff(3))
	assert.Equal(t, 5*time.Second, d.backoff(4))
}

func TestRunStopsOnCancel(t *testing.T) {
	q, _ := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	d := New(q, q.Consumer("w"), func(context.Context, *queue.Message) error { return nil }, Config{PollRate: 100}, nil, nil)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
