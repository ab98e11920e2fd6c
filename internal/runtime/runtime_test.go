package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/shardq/internal/config"
	"github.com/rzbill/shardq/internal/queue"
)

func testConfig(t *testing.T, backend string) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Backend = backend
	cfg.Storage.Fsync = "always"
	cfg.Sweeper.Interval = 50 * time.Millisecond
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(context.Background(), Options{Config: testConfig(t, "pebble")})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpenInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "pebble")
	cfg.Queue.ShardCount = 0
	_, err := Open(context.Background(), Options{Config: cfg})
	require.Error(t, err)
}

func TestOpenQueueAutoCreate(t *testing.T) {
	for _, backend := range []string{"pebble", "bolt"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t, backend)
			cfg.Queue.ShardCount = 8
			rt, err := Open(ctx, Options{Config: cfg})
			require.NoError(t, err)
			defer rt.Close()

			q, err := rt.DefaultQueue(ctx)
			require.NoError(t, err)
			require.Equal(t, "default", q.Name())
			require.Equal(t, 8, q.Metadata().ShardCount)

			again, err := rt.OpenQueue(ctx, "default")
			require.NoError(t, err)
			require.Same(t, q, again)

			_, err = q.Producer().Enqueue(ctx, &queue.Message{Body: []byte("hello")})
			require.NoError(t, err)
			n, err := q.MessageCount(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, n)
		})
	}
}

func TestOpenQueueWithoutAutoCreate(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "pebble")
	cfg.Queue.AutoCreate = false
	rt, err := Open(ctx, Options{Config: cfg})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.OpenQueue(ctx, "jobs")
	require.ErrorIs(t, err, queue.ErrQueueNotFound)

	_, err = rt.CreateQueue(ctx, "jobs", queue.Metadata{ShardCount: 2})
	require.NoError(t, err)
	q, err := rt.OpenQueue(ctx, "jobs")
	require.NoError(t, err)
	require.Equal(t, 2, q.Metadata().ShardCount)
}

func TestCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, Options{Config: testConfig(t, "pebble")})
	require.NoError(t, err)
	_, err = rt.DefaultQueue(ctx)
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	require.Error(t, rt.CheckHealth(ctx))
	_, err = rt.OpenQueue(ctx, "other")
	require.Error(t, err)
}
