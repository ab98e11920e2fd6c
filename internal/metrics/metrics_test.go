package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Enqueued("jobs")
	m.Enqueued("jobs")
	m.Claimed("jobs", 3)
	m.Claimed("jobs", 0)
	m.Busy("jobs")
	m.Failed("jobs", "read")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EnqueueTotal.WithLabelValues("jobs")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ClaimTotal.WithLabelValues("jobs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BusyLockTotal.WithLabelValues("jobs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorTotal.WithLabelValues("jobs", "read")))

	n, err := testutil.GatherAndCount(reg, "shardq_enqueue_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStorageHook(t *testing.T) {
	m := New(nil)
	m.ObserveWrite(time.Millisecond, 10)
	m.ObserveRead(time.Millisecond, 5)
	m.ObserveBatchCommit(time.Millisecond, 2, 7)

	assert.Equal(t, 10.0, testutil.ToFloat64(m.StorageBytes.WithLabelValues("write")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.StorageBytes.WithLabelValues("read")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.StorageBytes.WithLabelValues("batch")))
}

func TestNilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Enqueued("q")
		m.Claimed("q", 1)
		m.Acked("q")
		m.Inflight("q", 1)
		m.ObserveWrite(time.Second, 1)
	})
}
