package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and aggregates sync metrics per resource kind.
type Metrics struct {
	mu    sync.Mutex
	kinds map[string]*KindMetrics
}

// KindMetrics represents metrics for one resource kind (players, courses, rounds).
type KindMetrics struct {
	attempts      atomic.Int64
	fresh         atomic.Int64
	stale         atomic.Int64
	unavailable   atomic.Int64
	totalDuration atomic.Int64 // milliseconds

	mu       sync.Mutex
	failures map[string]int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		kinds: make(map[string]*KindMetrics),
	}
}

// RecordAttempt records the start of a pipeline run.
func (m *Metrics) RecordAttempt(kind string) {
	m.getKindMetrics(kind).attempts.Add(1)
}

// RecordOutcome records the tri-state result of a run and its duration.
func (m *Metrics) RecordOutcome(kind, outcome string, duration time.Duration) {
	km := m.getKindMetrics(kind)
	switch outcome {
	case "fresh":
		km.fresh.Add(1)
	case "stale_ok":
		km.stale.Add(1)
	case "unavailable":
		km.unavailable.Add(1)
	}
	km.totalDuration.Add(duration.Milliseconds())
}

// RecordFailure records a failed attempt by error code.
func (m *Metrics) RecordFailure(kind, code string) {
	km := m.getKindMetrics(kind)
	km.mu.Lock()
	km.failures[code]++
	km.mu.Unlock()
}

func (m *Metrics) getKindMetrics(kind string) *KindMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	km, ok := m.kinds[kind]
	if !ok {
		km = &KindMetrics{failures: make(map[string]int64)}
		m.kinds[kind] = km
	}
	return km
}

// Kinds returns all resource kinds that have been recorded, sorted.
func (m *Metrics) Kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	kinds := make([]string, 0, len(m.kinds))
	for kind := range m.kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.mu.Lock()
	m.kinds = make(map[string]*KindMetrics)
	m.mu.Unlock()
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := &MetricsSnapshot{Kinds: make(map[string]*KindMetricsSnapshot, len(m.kinds))}
	for kind, km := range m.kinds {
		km.mu.Lock()
		failures := make(map[string]int64, len(km.failures))
		for code, n := range km.failures {
			failures[code] = n
		}
		km.mu.Unlock()

		snapshot.Kinds[kind] = &KindMetricsSnapshot{
			Attempts:      km.attempts.Load(),
			Fresh:         km.fresh.Load(),
			StaleOK:       km.stale.Load(),
			Unavailable:   km.unavailable.Load(),
			TotalDuration: km.totalDuration.Load(),
			Failures:      failures,
		}
	}
	return snapshot
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	Kinds map[string]*KindMetricsSnapshot
}

// KindMetricsSnapshot represents metrics for one resource kind.
type KindMetricsSnapshot struct {
	Attempts      int64
	Fresh         int64
	StaleOK       int64
	Unavailable   int64
	TotalDuration int64
	Failures      map[string]int64
}

// Completed returns the number of runs that reported an outcome.
func (s *KindMetricsSnapshot) Completed() int64 {
	return s.Fresh + s.StaleOK + s.Unavailable
}

// AverageDuration returns the mean run duration in milliseconds.
func (s *KindMetricsSnapshot) AverageDuration() int64 {
	if n := s.Completed(); n > 0 {
		return s.TotalDuration / n
	}
	return 0
}

// AvailabilityRate returns the share of completed runs that served data, as a percentage (0-100).
func (s *KindMetricsSnapshot) AvailabilityRate() float64 {
	n := s.Completed()
	if n == 0 {
		return 100.0
	}
	return float64(n-s.Unavailable) / float64(n) * 100.0
}
