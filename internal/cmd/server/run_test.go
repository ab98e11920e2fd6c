package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/shardq/internal/config"
	"github.com/rzbill/shardq/internal/queue"
	"github.com/rzbill/shardq/internal/runtime"
	logpkg "github.com/rzbill/shardq/pkg/log"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "store")
	cfg.Storage.Fsync = "never"
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Log.Level = "error"
	return cfg
}

func TestRunNeedsHTTPOrHandler(t *testing.T) {
	err := Run(context.Background(), Options{Config: testConfig(t), DisableHTTP: true})
	require.Error(t, err)
}

// TestRunIntegration verifies Run starts and stops cleanly when its context
// ends.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := Run(ctx, Options{Config: testConfig(t)}); err != nil {
		t.Errorf("run: %v", err)
	}
}

func TestRunDispatchesMessages(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dispatch.PollInterval = 10 * time.Millisecond
	ctx := context.Background()

	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg})
	require.NoError(t, err)
	q, err := rt.DefaultQueue(ctx)
	require.NoError(t, err)
	for _, body := range []string{"a", "b", "c"} {
		_, err := q.Producer().Enqueue(ctx, &queue.Message{Body: []byte(body)})
		require.NoError(t, err)
	}
	require.NoError(t, rt.Close())

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var (
		mu   sync.Mutex
		seen []string
	)
	handler := func(_ context.Context, m *queue.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(m.Body))
		if len(seen) == 3 {
			cancel()
		}
		return nil
	}
	err = Run(runCtx, Options{Config: cfg, DisableHTTP: true, Handler: handler, Logger: logpkg.NewNop()})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b", "c"}, seen)

	rt, err = runtime.Open(ctx, runtime.Options{Config: cfg})
	require.NoError(t, err)
	defer rt.Close()
	q, err = rt.DefaultQueue(ctx)
	require.NoError(t, err)
	n, err := q.MessageCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestExecHandler(t *testing.T) {
	m := &queue.Message{
		ID:       "1:0:abc:def:0",
		Body:     []byte("hello"),
		Attempts: 2,
		Key:      "k",
		Headers:  map[string]string{"x-trace": "abc"},
	}
	ok := ExecHandler(`test "$(cat)" = hello && test "$SHARDQ_ATTEMPTS" = 2 && test "$SHARDQ_HEADER_X_TRACE" = abc`)
	require.NoError(t, ok(context.Background(), m))

	fail := ExecHandler(`echo boom >&2; exit 3`)
	err := fail(context.Background(), m)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "boom"))
}

func TestConsumerID(t *testing.T) {
	require.Equal(t, "w1", consumerID("w1"))
	id := consumerID("")
	require.NotEmpty(t, id)
	require.True(t, strings.HasSuffix(id, "-"+strconv.Itoa(os.Getpid())))
}

