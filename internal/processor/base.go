package processor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/cos"
	"github.com/notyesbut/shardregistry/internal/events"
	"github.com/notyesbut/shardregistry/internal/logging"
	"github.com/notyesbut/shardregistry/internal/metrics"
	"github.com/notyesbut/shardregistry/internal/persistence"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// StoredPayload/RetrievedPayload/etc. are the event payloads published on
// the shared bus for the record_* topics.
type (
	StoredPayload    struct{ ProcessorID, RecordID string }
	RetrievedPayload struct{ ProcessorID, RecordID string }
	DeletedPayload   struct{ ProcessorID, RecordID string }
	QueryPayload     struct {
		ProcessorID string
		ResultCount int
		Elapsed     time.Duration
	}
	ShutdownPayload struct{ ProcessorID string }
)

// ResourceSampler reports a processor's instantaneous CPU/memory
// utilization as 0..100 percentages, consulted by GetHealth. A nil sampler
// falls back to defaultResourceSample. Tier/domain constructors may supply
// their own via Deps.Sampler (e.g. a cgroup-aware one in a containerized
// deployment, or a fake one in tests).
type ResourceSampler func() (cpuPct, memPct float64)

// goroutinesPerFullCPU is the goroutine-count-per-GOMAXPROCS ratio treated
// as "fully loaded" by defaultResourceSample's CPU proxy.
const goroutinesPerFullCPU = 50

// Base implements the common processor contract: CRUD, indexing, eviction,
// metrics and lifecycle. Domain and tier specific behavior is supplied via
// DomainHooks/TierHooks, composed in rather than inherited (spec.md §9).
type Base struct {
	id        string
	domain    record.Domain
	tier      record.Tier
	createdAt int64

	mu      sync.RWMutex
	records map[string]*record.Record
	indices map[string]*record.IndexMap
	totalSz int64

	cfg   config.Configuration
	hooks DomainHooks
	tiers TierHooks
	bus   *events.Bus
	pers  persistence.Hook
	log   logging.Logger

	mset *metrics.Set

	latencyEMA *cos.EMA
	errorEMA   *cos.EMA
	startedAt  time.Time

	migrationHistory []MigrationRecord
	relatedMCPs      []string
	tags             map[string]struct{}

	sampler ResourceSampler

	shutdownOnce sync.Once
	shutdown     bool
}

// Deps bundles the collaborators Base needs, so domain/tier constructors
// don't have to repeat a long parameter list.
type Deps struct {
	ID      string
	Domain  record.Domain
	Tier    record.Tier
	Config  config.Configuration
	Hooks   DomainHooks
	Tiers   TierHooks
	Bus     *events.Bus
	Persist persistence.Hook
	Metrics *metrics.Set
	Sampler ResourceSampler
}

// NewBase constructs a Base ready to serve traffic. Index maps are
// pre-created for every index the domain requires.
func NewBase(d Deps) *Base {
	id := d.ID
	if id == "" {
		id = cos.GenID()
	}
	b := &Base{
		id:         id,
		domain:     d.Domain,
		tier:       d.Tier,
		createdAt:  time.Now().UnixMilli(),
		records:    map[string]*record.Record{},
		indices:    map[string]*record.IndexMap{},
		cfg:        d.Config,
		hooks:      d.Hooks,
		tiers:      d.Tiers,
		bus:        d.Bus,
		pers:       d.Persist,
		mset:       d.Metrics,
		latencyEMA: cos.NewEMA(0.1),
		errorEMA:   cos.NewEMA(0.05),
		startedAt:  time.Now(),
		tags:       map[string]struct{}{},
		sampler:    d.Sampler,
	}
	for _, idx := range d.Hooks.RequiredIndices() {
		b.indices[idx] = record.NewIndexMap()
	}
	b.log = logging.For("processor", map[string]any{"proc_id": id, "domain": string(d.Domain), "tier": string(d.Tier)})
	return b
}

func (b *Base) ID() string { return b.id }

func (b *Base) observe(op string, start time.Time, err error) {
	elapsed := time.Since(start)
	b.latencyEMA.Update(float64(elapsed.Milliseconds()))
	if err != nil {
		b.errorEMA.Update(1)
	} else {
		b.errorEMA.Update(0)
	}
	if b.mset != nil {
		b.mset.OpLatency.WithLabelValues(b.id, string(b.domain), string(b.tier), op).Observe(elapsed.Seconds())
		if err != nil {
			b.mset.OpErrors.WithLabelValues(b.id, string(b.domain), string(b.tier), op).Inc()
		}
	}
	b.log.WithField("op", op).WithField("elapsed_ms", elapsed.Milliseconds()).Debug("processor operation")
}

// Store inserts or overwrites a record by id, running domain validation,
// tier preparation (e.g. compression), eviction if at capacity, and index
// maintenance, then emits record_stored.
func (b *Base) Store(ctx context.Context, r *record.Record) error {
	start := time.Now()
	err := b.store(ctx, r)
	b.observe("store", start, err)
	return err
}

func (b *Base) store(ctx context.Context, r *record.Record) error {
	if err := b.hooks.Validate(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = cos.GenID()
	}
	if r.Meta.Access == nil {
		r.Meta.Access = record.NewAccessPattern()
	}

	prepared, err := b.tiers.PrepareStore(ctx, r)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return xerrors.New(xerrors.ProcessorNotFound, "processor is shut down").WithProcessor(b.id)
	}

	_, overwrite := b.records[prepared.ID]
	if !overwrite && len(b.records) >= b.cfg.MaxRecords {
		if err := b.evictLocked(); err != nil {
			return err
		}
		if len(b.records) >= b.cfg.MaxRecords {
			return xerrors.New(xerrors.CapacityExceeded, "processor at capacity after eviction").WithProcessor(b.id)
		}
	}

	if overwrite {
		b.unindexLocked(b.records[prepared.ID])
	}
	b.records[prepared.ID] = prepared
	b.indexLocked(prepared)
	b.totalSz += int64(prepared.Meta.Size)

	if b.pers != nil {
		if blob, ok := prepared.Data.([]byte); ok {
			_ = b.pers.SaveRecord(ctx, b.id, prepared.ID, blob)
		}
	}

	if b.mset != nil {
		b.mset.RecordCount.WithLabelValues(b.id, string(b.domain), string(b.tier)).Set(float64(len(b.records)))
	}
	if b.bus != nil {
		b.bus.Publish(events.Event{Topic: events.TopicRecordStored, Payload: StoredPayload{ProcessorID: b.id, RecordID: prepared.ID}})
	}
	return nil
}

// Update is equivalent to Store; the caller is responsible for bumping
// Meta.Version (spec.md §9 open question (b)).
func (b *Base) Update(ctx context.Context, r *record.Record) error { return b.Store(ctx, r) }

// Retrieve returns the record by id, updating its access pattern and
// emitting record_retrieved. Absent is reported via the bool, not an error.
func (b *Base) Retrieve(ctx context.Context, id string) (*record.Record, bool, error) {
	start := time.Now()
	r, ok, err := b.retrieve(ctx, id)
	b.observe("retrieve", start, err)
	return r, ok, err
}

func (b *Base) retrieve(ctx context.Context, id string) (*record.Record, bool, error) {
	b.mu.Lock()
	r, ok := b.records[id]
	if !ok {
		b.mu.Unlock()
		return nil, false, nil
	}
	r.Meta.Access.Touch(time.Now().UnixMilli(), record.AccessRead)
	out := r.Clone()
	b.mu.Unlock()

	out, err := b.tiers.AfterRetrieve(ctx, out)
	if err != nil {
		return nil, false, err
	}
	if b.bus != nil {
		b.bus.Publish(events.Event{Topic: events.TopicRecordRetrieved, Payload: RetrievedPayload{ProcessorID: b.id, RecordID: id}})
	}
	return out, true, nil
}

// Query runs filters across the store, preferring indices and falling
// back to a full scan. Every returned record has its access pattern
// updated as if individually retrieved.
func (b *Base) Query(ctx context.Context, q Query) (QueryResult, error) {
	start := time.Now()
	res, err := b.query(ctx, q)
	b.observe("query", start, err)
	return res, err
}

func (b *Base) query(ctx context.Context, q Query) (QueryResult, error) {
	start := time.Now()
	b.mu.Lock()
	candidateIDs, usedIndex, indexName := b.candidateIDsLocked(q.Filters)
	now := time.Now().UnixMilli()
	var out []*record.Record
	for _, id := range candidateIDs {
		r, ok := b.records[id]
		if !ok {
			continue
		}
		if !b.matchesFiltersLocked(r, q.Filters) {
			continue
		}
		r.Meta.Access.Touch(now, record.AccessRead)
		out = append(out, r.Clone())
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Options.Limit > 0 && len(out) > q.Options.Limit {
		out = out[:q.Options.Limit]
	}

	for i, r := range out {
		decoded, err := b.tiers.AfterRetrieve(ctx, r)
		if err != nil {
			return QueryResult{}, err
		}
		out[i] = decoded
	}

	var usedIdx []string
	if usedIndex {
		usedIdx = []string{indexName}
	}
	res := QueryResult{
		Data:       out,
		TotalCount: len(out),
		Meta: ResultMeta{
			ExecutionTime: time.Since(start),
			ProcessorID:   b.id,
			IndexesUsed:   usedIdx,
		},
	}
	if b.bus != nil {
		b.bus.Publish(events.Event{Topic: events.TopicQueryExecuted, Payload: QueryPayload{ProcessorID: b.id, ResultCount: len(out)}})
	}
	return res, nil
}

// candidateIDsLocked narrows the scan using a single-valued filter that
// matches an existing index when possible; otherwise it returns every id
// for a full scan. Caller holds b.mu.
func (b *Base) candidateIDsLocked(filters map[string]any) (ids []string, usedIndex bool, indexName string) {
	for name, idx := range b.indices {
		v, ok := filters[name]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		return idx.Lookup(s), true, name
	}
	ids = make([]string, 0, len(b.records))
	for id := range b.records {
		ids = append(ids, id)
	}
	return ids, false, ""
}

// matchesFiltersLocked is the full predicate every candidate must satisfy,
// independent of which single index (if any) narrowed candidateIDsLocked's
// scan: "id"/"type" match the native fields, every other key is checked
// against this record's own domain-extracted index keys, so a multi-field
// query like {application:"foo", level:"error"} can never be satisfied by a
// record that only matches one of the two. Caller holds b.mu.
func (b *Base) matchesFiltersLocked(r *record.Record, filters map[string]any) bool {
	if len(filters) == 0 {
		return true
	}
	var extracted map[string][]string
	for k, v := range filters {
		switch k {
		case "id":
			if r.ID != v {
				return false
			}
			continue
		case "type":
			if r.Type != v {
				return false
			}
			continue
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		if extracted == nil {
			extracted = b.hooks.ExtractIndexKeys(r)
		}
		if !containsString(extracted[k], s) {
			return false
		}
	}
	return true
}

func containsString(vals []string, s string) bool {
	for _, v := range vals {
		if v == s {
			return true
		}
	}
	return false
}

// Delete removes a record from every index, then from the store, and
// emits record_deleted.
func (b *Base) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := b.delete(ctx, id)
	b.observe("delete", start, err)
	return err
}

func (b *Base) delete(ctx context.Context, id string) error {
	b.mu.Lock()
	r, ok := b.records[id]
	if !ok {
		b.mu.Unlock()
		return xerrors.New(xerrors.ProcessorNotFound, "record not found").WithProcessor(b.id)
	}
	b.unindexLocked(r)
	delete(b.records, id)
	b.totalSz -= int64(r.Meta.Size)
	if b.mset != nil {
		b.mset.RecordCount.WithLabelValues(b.id, string(b.domain), string(b.tier)).Set(float64(len(b.records)))
	}
	b.mu.Unlock()

	if b.pers != nil {
		_ = b.pers.DeleteRecord(ctx, b.id, id)
	}
	if b.bus != nil {
		b.bus.Publish(events.Event{Topic: events.TopicRecordDeleted, Payload: DeletedPayload{ProcessorID: b.id, RecordID: id}})
	}
	return nil
}

// indexLocked/unindexLocked maintain every domain-registered index
// atomically with the record's presence in the store, since the caller
// always holds b.mu across both the record-map mutation and these calls.
func (b *Base) indexLocked(r *record.Record) {
	for name, keys := range b.hooks.ExtractIndexKeys(r) {
		idx, ok := b.indices[name]
		if !ok {
			idx = record.NewIndexMap()
			b.indices[name] = idx
		}
		for _, k := range keys {
			idx.Add(k, r.ID)
		}
	}
}

func (b *Base) unindexLocked(r *record.Record) {
	for name, keys := range b.hooks.ExtractIndexKeys(r) {
		idx, ok := b.indices[name]
		if !ok {
			continue
		}
		for _, k := range keys {
			idx.Remove(k, r.ID)
		}
	}
}

// GetHealth reports status classified from the error/latency moving
// averages per spec.md §4.1, plus sampled CPU/memory utilization.
func (b *Base) GetHealth(context.Context) (Health, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	status := b.classifyHealthLocked()
	cpu, mem := b.sampleResourcesLocked()
	return Health{
		Status:      status,
		Uptime:      time.Since(b.startedAt),
		MemoryUsage: mem,
		CPUUsage:    cpu,
		DiskUsage:   0,
	}, nil
}

// sampleResourcesLocked reports CPU/memory utilization via the configured
// sampler, or defaultResourceSample if none was supplied. Caller holds
// b.mu (at least RLock).
func (b *Base) sampleResourcesLocked() (cpuPct, memPct float64) {
	if b.sampler != nil {
		return b.sampler()
	}
	return b.defaultResourceSample()
}

// defaultResourceSample derives CPU load from goroutine pressure relative
// to GOMAXPROCS (there is no cross-platform, dependency-free way to read
// real per-process CPU/RSS without an OS-specific syscall) and memory from
// this processor's own configured capacity: total stored bytes against
// cfg.MaxSize, the more actionable signal for one processor sharing an OS
// process with its siblings.
func (b *Base) defaultResourceSample() (cpuPct, memPct float64) {
	full := runtime.GOMAXPROCS(0) * goroutinesPerFullCPU
	if full > 0 {
		cpuPct = 100 * float64(runtime.NumGoroutine()) / float64(full)
	}
	if cpuPct > 100 {
		cpuPct = 100
	}
	if b.cfg.MaxSize > 0 {
		memPct = 100 * float64(b.totalSz) / float64(b.cfg.MaxSize)
	}
	if memPct > 100 {
		memPct = 100
	}
	return cpuPct, memPct
}

func (b *Base) classifyHealthLocked() HealthStatus {
	if b.shutdown {
		return Offline
	}
	if b.errorEMA.Value() > 0.10 {
		return Unhealthy
	}
	if b.latencyEMA.Value() > 1000 {
		return Degraded
	}
	return Healthy
}

// GetMetrics returns the current moving-average snapshot.
func (b *Base) GetMetrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	freq := 0
	for _, r := range b.records {
		freq += r.Meta.Access.Frequency
	}
	uptime := time.Since(b.startedAt).Seconds()
	var throughput float64
	if uptime > 0 {
		throughput = float64(freq) / uptime
	}
	return Metrics{
		AverageResponseTime: time.Duration(b.latencyEMA.Value()) * time.Millisecond,
		ErrorRate:           b.errorEMA.Value(),
		Throughput:          throughput,
		AccessFrequency:     freq,
		RecordCount:         len(b.records),
		TotalSize:           b.totalSz,
	}
}

// GetMetadata assembles the full processor-metadata record.
func (b *Base) GetMetadata() Metadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var lastAccessed int64
	for _, r := range b.records {
		if r.Meta.Access.LastAccessed > lastAccessed {
			lastAccessed = r.Meta.Access.LastAccessed
		}
	}
	return Metadata{
		ID:                b.id,
		Domain:            b.domain,
		Tier:              b.tier,
		PerformanceTier:   PerfStandard,
		HealthStatus:      b.classifyHealthLocked(),
		AccessFrequency:   b.GetMetrics().AccessFrequency,
		LastAccessed:      lastAccessed,
		RecordCount:       len(b.records),
		TotalSize:         b.totalSz,
		CreatedAt:         b.createdAt,
		UpdatedAt:         time.Now().UnixMilli(),
		Configuration:     b.cfg,
		Metrics:           b.GetMetrics(),
		MigrationHistory:  append([]MigrationRecord(nil), b.migrationHistory...),
		RelatedProcessors: append([]string(nil), b.relatedMCPs...),
		Tags:              b.tags,
	}
}

func (b *Base) GetCapabilities() Capabilities { return b.tiers.Capabilities() }

func (b *Base) GetConfiguration() config.Configuration { return b.cfg }

// AppendMigration records a completed migration-history entry on this
// processor, called by the registry after cutover.
func (b *Base) AppendMigration(m MigrationRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.migrationHistory = append(b.migrationHistory, m)
}

// Shutdown flushes pending tier work, drops records/indices, and emits
// shutdown exactly once.
func (b *Base) Shutdown(ctx context.Context) error {
	var ferr error
	b.shutdownOnce.Do(func() {
		ferr = b.tiers.Flush(ctx)
		b.mu.Lock()
		b.records = map[string]*record.Record{}
		b.indices = map[string]*record.IndexMap{}
		b.shutdown = true
		b.mu.Unlock()
		if b.bus != nil {
			b.bus.Publish(events.Event{Topic: events.TopicShutdown, Payload: ShutdownPayload{ProcessorID: b.id}})
		}
	})
	return ferr
}

// RemoveForArchive atomically removes id from the live table and its
// indices without publishing record_deleted, used by the cold tier's
// cost-tier migration sweep when a record moves to deep-archive storage.
// The caller (the cold tier) is responsible for emitting its own
// deep_archive_migration event.
func (b *Base) RemoveForArchive(id string) (*record.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.records[id]
	if !ok {
		return nil, false
	}
	b.unindexLocked(r)
	delete(b.records, id)
	b.totalSz -= int64(r.Meta.Size)
	if b.mset != nil {
		b.mset.RecordCount.WithLabelValues(b.id, string(b.domain), string(b.tier)).Set(float64(len(b.records)))
	}
	return r, true
}

// Bus exposes the processor's shared event bus so a tier specialization
// can publish its own topics (batch_processed, retention_cleanup,
// deep_archive_migration) without Base needing to know about them.
func (b *Base) Bus() *events.Bus { return b.bus }

// Persistence exposes the processor's persistence hook to tier code that
// needs to save/load batches or archive blobs directly.
func (b *Base) Persistence() persistence.Hook { return b.pers }

// Snapshot returns every live record, used by the migration copy phase.
func (b *Base) Snapshot() []*record.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*record.Record, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r.Clone())
	}
	return out
}

// Domain/Tier expose the processor's axis tags for registry bookkeeping.
func (b *Base) Domain() record.Domain { return b.domain }
func (b *Base) Tier() record.Tier     { return b.tier }

// Hooks exposes the domain specialization backing this processor, so
// registry-level code can reach domain-specific scheduled work (e.g. the
// logs domain's retention sweep) without Base needing to know it exists.
func (b *Base) Hooks() DomainHooks { return b.hooks }
