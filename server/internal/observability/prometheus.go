package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fairway"

var (
	syncAttemptsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "sync", "attempts_total"),
		"Fetch-validate-commit runs started, by resource kind.",
		[]string{"kind"}, nil,
	)
	syncOutcomesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "sync", "outcomes_total"),
		"Fetch-validate-commit runs completed, by resource kind and outcome.",
		[]string{"kind", "outcome"}, nil,
	)
	syncFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "sync", "failures_total"),
		"Failed fetch attempts, by resource kind and error code.",
		[]string{"kind", "code"}, nil,
	)
	syncDurationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "sync", "duration_milliseconds_total"),
		"Cumulative run duration in milliseconds, by resource kind.",
		[]string{"kind"}, nil,
	)
)

// Collector exports a Metrics instance to Prometheus.
type Collector struct {
	metrics *Metrics
}

// NewCollector returns a prometheus.Collector reading from metrics at scrape time.
func NewCollector(metrics *Metrics) *Collector {
	return &Collector{metrics: metrics}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- syncAttemptsDesc
	ch <- syncOutcomesDesc
	ch <- syncFailuresDesc
	ch <- syncDurationDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.metrics.Snapshot()
	for kind, km := range snapshot.Kinds {
		ch <- prometheus.MustNewConstMetric(syncAttemptsDesc, prometheus.CounterValue, float64(km.Attempts), kind)
		ch <- prometheus.MustNewConstMetric(syncOutcomesDesc, prometheus.CounterValue, float64(km.Fresh), kind, "fresh")
		ch <- prometheus.MustNewConstMetric(syncOutcomesDesc, prometheus.CounterValue, float64(km.StaleOK), kind, "stale_ok")
		ch <- prometheus.MustNewConstMetric(syncOutcomesDesc, prometheus.CounterValue, float64(km.Unavailable), kind, "unavailable")
		for code, n := range km.Failures {
			ch <- prometheus.MustNewConstMetric(syncFailuresDesc, prometheus.CounterValue, float64(n), kind, code)
		}
		ch <- prometheus.MustNewConstMetric(syncDurationDesc, prometheus.CounterValue, float64(km.TotalDuration), kind)
	}
}

// NewRegistry returns a registry with the sync collector and the Go runtime collectors.
func NewRegistry(metrics *Metrics) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(metrics),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return registry
}
