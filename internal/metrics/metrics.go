// Package metrics holds the Prometheus collectors the registry and its
// processors publish, grounded on the teacher's stats package's convention
// of registering named counters/latencies (stats/target_stats.go).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set groups every collector one registry instance owns. Each processor
// reports into the same set, labeled by processor id/domain/tier.
type Set struct {
	OpLatency    *prometheus.HistogramVec
	OpErrors     *prometheus.CounterVec
	RecordCount  *prometheus.GaugeVec
	ProcessorUp  *prometheus.GaugeVec
	Migrations   *prometheus.CounterVec
	QueryResults *prometheus.HistogramVec
}

// NewSet constructs and registers a fresh collector set against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry.
func NewSet(reg prometheus.Registerer) *Set {
	s := &Set{
		OpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shardregistry",
			Name:      "operation_latency_seconds",
			Help:      "Per-processor operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"processor_id", "domain", "tier", "op"}),
		OpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shardregistry",
			Name:      "operation_errors_total",
			Help:      "Per-processor operation error count.",
		}, []string{"processor_id", "domain", "tier", "op"}),
		RecordCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shardregistry",
			Name:      "processor_record_count",
			Help:      "Records currently held by a processor.",
		}, []string{"processor_id", "domain", "tier"}),
		ProcessorUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shardregistry",
			Name:      "processor_healthy",
			Help:      "1 if the processor is healthy, 0 otherwise.",
		}, []string{"processor_id", "domain", "tier"}),
		Migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shardregistry",
			Name:      "migrations_total",
			Help:      "Completed hot/cold migrations by outcome.",
		}, []string{"domain", "outcome"}),
		QueryResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shardregistry",
			Name:      "query_result_count",
			Help:      "Result-set size returned by fan-out queries.",
			Buckets:   []float64{0, 1, 5, 20, 100, 500},
		}, []string{"domain"}),
	}
	reg.MustRegister(s.OpLatency, s.OpErrors, s.RecordCount, s.ProcessorUp, s.Migrations, s.QueryResults)
	return s
}
