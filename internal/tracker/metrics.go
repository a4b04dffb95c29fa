package tracker

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_polls_total",
		Help: "Oracle polls by outcome",
	}, []string{"result"})

	transitionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_status_transitions_total",
		Help: "Signals leaving the active state, by new status",
	}, []string{"status"})

	thresholdsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_thresholds_reached_total",
		Help: "Alert thresholds stamped by the scheduler",
	})

	activeMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_active_signals",
		Help: "Active signals seen by the last sweep",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_sweep_seconds",
		Help:    "Time spent in one sweep over the active signals",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// Metrics tracks oracle latency and sweep outcomes
type Metrics struct {
	// Latency samples (in milliseconds)
	samples   []int64
	sampleIdx int
	mu        sync.Mutex

	sweeps   atomic.Int64
	polls    atomic.Int64
	failures atomic.Int64
	stopped  atomic.Int64
	active   atomic.Int64
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		samples: make([]int64, 100), // Keep last 100 samples
	}
}

// RecordLookup records one oracle call
func (m *Metrics) RecordLookup(latencyMs int64, result string) {
	m.mu.Lock()
	m.samples[m.sampleIdx%len(m.samples)] = latencyMs
	m.sampleIdx++
	m.mu.Unlock()

	m.polls.Add(1)
	if result != "ok" {
		m.failures.Add(1)
	}
	pollsMetric.WithLabelValues(result).Inc()
}

// RecordTransition counts a Signal leaving the active state
func (m *Metrics) RecordTransition(status string) {
	m.stopped.Add(1)
	transitionsMetric.WithLabelValues(status).Inc()
}

// RecordThresholds counts newly stamped thresholds
func (m *Metrics) RecordThresholds(n int) {
	if n > 0 {
		thresholdsMetric.Add(float64(n))
	}
}

// RecordSweep records one completed pass
func (m *Metrics) RecordSweep(active int, seconds float64) {
	m.sweeps.Add(1)
	m.active.Store(int64(active))
	activeMetric.Set(float64(active))
	sweepDuration.Observe(seconds)
}

// P50 returns the 50th percentile latency
func (m *Metrics) P50() int64 {
	return m.percentile(50)
}

// P95 returns the 95th percentile latency
func (m *Metrics) P95() int64 {
	return m.percentile(95)
}

// P99 returns the 99th percentile latency
func (m *Metrics) P99() int64 {
	return m.percentile(99)
}

// Avg returns the average latency
func (m *Metrics) Avg() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.count()
	if count == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < count; i++ {
		sum += m.samples[i]
	}
	return sum / int64(count)
}

func (m *Metrics) count() int {
	if m.sampleIdx > len(m.samples) {
		return len(m.samples)
	}
	return m.sampleIdx
}

func (m *Metrics) percentile(p int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.count()
	if count == 0 {
		return 0
	}
	sorted := make([]int64, count)
	copy(sorted, m.samples[:count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (p * count) / 100
	if idx >= count {
		idx = count - 1
	}
	return sorted[idx]
}

// Stats returns aggregate counters
func (m *Metrics) Stats() (sweeps, polls, failures, stopped, active int64) {
	return m.sweeps.Load(), m.polls.Load(), m.failures.Load(), m.stopped.Load(), m.active.Load()
}
