// Package metrics exposes queue and storage instrumentation as Prometheus
// collectors. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector. Queue-level vectors are labelled by queue
// name.
type Metrics struct {
	EnqueueTotal     *prometheus.CounterVec
	ClaimTotal       *prometheus.CounterVec
	BusyLockTotal    *prometheus.CounterVec
	AckTotal         *prometheus.CounterVec
	PoisonTotal      *prometheus.CounterVec
	RescheduleTotal  *prometheus.CounterVec
	CorruptTotal     *prometheus.CounterVec
	ErrorTotal       *prometheus.CounterVec
	ReclaimedTotal   *prometheus.CounterVec
	ReadDuration     *prometheus.HistogramVec
	StorageDuration  *prometheus.HistogramVec
	StorageBytes     *prometheus.CounterVec
	DispatchInflight *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	queue := []string{"queue"}
	m := &Metrics{
		EnqueueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_enqueue_total",
			Help: "Messages written by producers.",
		}, queue),
		ClaimTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_claim_total",
			Help: "Messages successfully claimed by consumers.",
		}, queue),
		BusyLockTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_busy_lock_total",
			Help: "Claim attempts lost to another consumer.",
		}, queue),
		AckTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_ack_total",
			Help: "Messages acknowledged.",
		}, queue),
		PoisonTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_poison_total",
			Help: "Messages moved to the poison row.",
		}, queue),
		RescheduleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_reschedule_total",
			Help: "Recurring messages re-enqueued on ack.",
		}, queue),
		CorruptTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_corrupt_entry_total",
			Help: "Entries skipped because their value failed to decode.",
		}, queue),
		ErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_error_total",
			Help: "Backend failures by operation.",
		}, []string{"queue", "op"}),
		ReclaimedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_expired_lock_total",
			Help: "Expired lock columns removed.",
		}, queue),
		ReadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shardq_read_duration_seconds",
			Help:    "Latency of consumer read calls.",
			Buckets: prometheus.DefBuckets,
		}, queue),
		StorageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shardq_storage_duration_seconds",
			Help:    "Latency of storage operations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		StorageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shardq_storage_bytes_total",
			Help: "Bytes moved by storage operations.",
		}, []string{"op"}),
		DispatchInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shardq_dispatch_inflight",
			Help: "Messages currently being handled by dispatch workers.",
		}, queue),
	}
	if reg != nil {
		reg.MustRegister(
			m.EnqueueTotal, m.ClaimTotal, m.BusyLockTotal, m.AckTotal, m.PoisonTotal,
			m.RescheduleTotal, m.CorruptTotal, m.ErrorTotal, m.ReclaimedTotal,
			m.ReadDuration, m.StorageDuration, m.StorageBytes, m.DispatchInflight,
		)
	}
	return m
}

func (m *Metrics) Enqueued(queue string) {
	if m != nil {
		m.EnqueueTotal.WithLabelValues(queue).Inc()
	}
}

func (m *Metrics) Claimed(queue string, n int) {
	if m != nil && n > 0 {
		m.ClaimTotal.WithLabelValues(queue).Add(float64(n))
	}
}

func (m *Metrics) Busy(queue string) {
	if m != nil {
		m.BusyLockTotal.WithLabelValues(queue).Inc()
	}
}

func (m *Metrics) Acked(queue string) {
	if m != nil {
		m.AckTotal.WithLabelValues(queue).Inc()
	}
}

func (m *Metrics) Poisoned(queue string) {
	if m != nil {
		m.PoisonTotal.WithLabelValues(queue).Inc()
	}
}

func (m *Metrics) Rescheduled(queue string) {
	if m != nil {
		m.RescheduleTotal.WithLabelValues(queue).Inc()
	}
}

func (m *Metrics) Corrupt(queue string) {
	if m != nil {
		m.CorruptTotal.WithLabelValues(queue).Inc()
	}
}

func (m *Metrics) Failed(queue, op string) {
	if m != nil {
		m.ErrorTotal.WithLabelValues(queue, op).Inc()
	}
}

func (m *Metrics) Reclaimed(queue string, n int) {
	if m != nil && n > 0 {
		m.ReclaimedTotal.WithLabelValues(queue).Add(float64(n))
	}
}

func (m *Metrics) ObserveReadCall(queue string, elapsed time.Duration) {
	if m != nil {
		m.ReadDuration.WithLabelValues(queue).Observe(elapsed.Seconds())
	}
}

// Inflight adjusts the dispatch in-flight gauge by delta.
func (m *Metrics) Inflight(queue string, delta int) {
	if m != nil {
		m.DispatchInflight.WithLabelValues(queue).Add(float64(delta))
	}
}

// ObserveWrite, ObserveRead and ObserveBatchCommit satisfy the pebble store's
// MetricsHook.

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.observeStorage("write", elapsed, bytes)
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.observeStorage("read", elapsed, bytes)
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.observeStorage("batch", elapsed, bytes)
}

func (m *Metrics) observeStorage(op string, elapsed time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.StorageDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	m.StorageBytes.WithLabelValues(op).Add(float64(bytes))
}
