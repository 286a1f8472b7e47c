// Package processor implements the processor base contract (spec.md
// §4.1): a common record store, secondary indices, access-pattern
// bookkeeping, eviction, and metrics shared by every domain/tier
// combination. Domain and tier specifics are supplied as small hook
// interfaces rather than through inheritance (spec.md §9).
package processor

import (
	"context"
	"time"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/record"
)

// HealthStatus is one of healthy/degraded/unhealthy/offline.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
	Offline   HealthStatus = "offline"
)

// PerformanceTier is realtime or standard, independent of hot/cold.
type PerformanceTier string

const (
	PerfRealtime PerformanceTier = "realtime"
	PerfStandard PerformanceTier = "standard"
)

// Health is the snapshot returned by GetHealth.
type Health struct {
	Status      HealthStatus
	Uptime      time.Duration
	MemoryUsage float64 // 0..100
	CPUUsage    float64 // 0..100
	DiskUsage   float64 // 0..100
}

// Metrics is the snapshot returned by GetMetrics.
type Metrics struct {
	AverageResponseTime time.Duration
	ErrorRate           float64
	Throughput          float64 // accesses/sec
	AccessFrequency     int
	RecordCount         int
	TotalSize           int64
}

// Capabilities answers "what does this processor support", filling in the
// design note in spec.md §9 left unspecified by §3/§4.
type Capabilities struct {
	SupportsFullText     bool
	SupportsCompression  bool
	SupportsArchival     bool
	MaxReplicationFactor int
}

// Metadata is the processor metadata record from spec.md §3.
type Metadata struct {
	ID                string
	Domain            record.Domain
	Tier              record.Tier
	PerformanceTier   PerformanceTier
	HealthStatus      HealthStatus
	AccessFrequency   int
	LastAccessed      int64
	RecordCount       int
	TotalSize         int64
	Endpoint          string
	CreatedAt         int64
	UpdatedAt         int64
	Configuration     config.Configuration
	Metrics           Metrics
	MigrationHistory  []MigrationRecord
	RelatedProcessors []string
	Tags              map[string]struct{}
}

// MigrationRecord is one entry in a processor's migration history.
type MigrationRecord struct {
	PlanID    string
	Source    string
	Target    string
	Strategy  string
	StartedAt int64
	EndedAt   int64
	Status    string
}

// Query is the caller-submitted filter/options bundle routed by the
// registry and executed in-process by a single processor.
type Query struct {
	Domain  record.Domain
	Filters map[string]any
	Options QueryOptions
}

// QueryOptions carries pagination/consistency knobs a processor may honor.
type QueryOptions struct {
	Limit int
}

// ResultMeta accompanies a QueryResult.
type ResultMeta struct {
	ExecutionTime time.Duration
	ProcessorID   string
	CacheHit      bool
	IndexesUsed   []string
	Partial       bool
}

// QueryResult is what a processor (and, aggregated, the registry) returns.
type QueryResult struct {
	Data       []*record.Record
	TotalCount int
	Meta       ResultMeta
}

// DomainHooks is the narrow interface a domain specialization supplies:
// validation and index-key extraction. Everything else is handled by Base.
type DomainHooks interface {
	Domain() record.Domain
	Validate(r *record.Record) error
	ExtractIndexKeys(r *record.Record) map[string][]string
	RequiredIndices() []string
}

// TierHooks is the narrow interface a tier specialization supplies: what
// happens to a record on the way in/out, and how pending work is flushed.
type TierHooks interface {
	Tier() record.Tier
	PrepareStore(ctx context.Context, r *record.Record) (*record.Record, error)
	AfterRetrieve(ctx context.Context, r *record.Record) (*record.Record, error)
	Flush(ctx context.Context) error
	Capabilities() Capabilities
}

// Processor is the public per-processor contract from spec.md §4.1/§6.
type Processor interface {
	ID() string
	Store(ctx context.Context, r *record.Record) error
	Retrieve(ctx context.Context, id string) (*record.Record, bool, error)
	Query(ctx context.Context, q Query) (QueryResult, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, r *record.Record) error

	GetHealth(ctx context.Context) (Health, error)
	GetMetrics() Metrics
	GetMetadata() Metadata
	GetCapabilities() Capabilities
	GetConfiguration() config.Configuration

	Shutdown(ctx context.Context) error
}
