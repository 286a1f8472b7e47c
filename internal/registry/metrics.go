package registry

import (
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
)

// SystemMetrics is the aggregated rollup of every registered processor's
// own GetMetrics()/GetMetadata(), per spec.md §6 / SPEC_FULL.md §9.
type SystemMetrics struct {
	ProcessorCount int
	ByTier         map[record.Tier]int
	ByDomain       map[record.Domain]int
	ByHealth       map[processor.HealthStatus]int

	TotalRecords        int
	AggregateThroughput float64 // sum of each processor's accesses/sec
	AggregateErrorRate  float64 // mean of each processor's error-EMA
}

// GetSystemMetrics rolls up processor count by tier/domain/health and
// aggregate throughput/error rate across every processor this registry
// currently routes to.
func (r *Registry) GetSystemMetrics() SystemMetrics {
	procs := r.GetAllProcessors()
	sm := SystemMetrics{
		ByTier:   map[record.Tier]int{},
		ByDomain: map[record.Domain]int{},
		ByHealth: map[processor.HealthStatus]int{},
	}

	var errSum float64
	for _, p := range procs {
		md := p.GetMetadata()
		sm.ProcessorCount++
		sm.ByTier[md.Tier]++
		sm.ByDomain[md.Domain]++
		sm.ByHealth[md.HealthStatus]++
		sm.TotalRecords += md.RecordCount
		sm.AggregateThroughput += md.Metrics.Throughput
		errSum += md.Metrics.ErrorRate
	}
	if sm.ProcessorCount > 0 {
		sm.AggregateErrorRate = errSum / float64(sm.ProcessorCount)
	}
	return sm
}
