// Package cold implements the cold-tier specialization (spec.md §4.3):
// batched writes, pluggable compression, an archive index for deep-archive
// records, a retention queue, and a cost-tier migration sweep.
package cold

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/cos"
	"github.com/notyesbut/shardregistry/internal/events"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/retentionq"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// BatchProcessedPayload/RetentionCleanupPayload/DeepArchivePayload are the
// event payloads published on topics specific to the cold tier.
type (
	BatchProcessedPayload struct {
		ProcessorID string
		Count       int
		Ratio       float64
	}
	RetentionCleanupPayload struct {
		ProcessorID string
		Deleted     int
	}
	DeepArchivePayload struct {
		ProcessorID string
		Migrated    int
	}
)

// CostTierThresholds gates the daily cost-tier migration sweep.
type CostTierThresholds struct {
	MaxFrequency int
	MinAge       time.Duration
	MinSize      int
}

// Processor is the cold-tier processor: a processor.Base plus batching,
// compression, archival and retention state.
type Processor struct {
	*processor.Base

	cfg        config.Configuration
	compressor Compressor
	archive    *ArchiveIndex
	retention  *retentionq.RetentionQueue
	limiter    *rate.Limiter

	bufMu sync.Mutex
	buf   []*record.Record

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// hooks adapts *Processor to processor.TierHooks without exposing the
// batching/archival internals to processor.Base.
type hooks struct{ p *Processor }

// New constructs a cold-tier processor. baseDeps.Tiers is filled in here;
// callers supply everything else (id, domain, config, domain hooks, bus,
// persistence, metrics).
func New(baseDeps processor.Deps) *Processor {
	p := &Processor{
		cfg:        baseDeps.Config,
		compressor: NewCompressor(),
		archive:    NewArchiveIndex(),
		retention:  retentionq.NewRetentionQueue(),
		limiter:    rate.NewLimiter(rate.Limit(50), 10),
		stopCh:     make(chan struct{}),
	}
	baseDeps.Tiers = &hooks{p: p}
	p.Base = processor.NewBase(baseDeps)

	interval := baseDeps.Config.BatchFlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	p.wg.Add(1)
	go p.flushLoop(interval)
	return p
}

func (p *Processor) flushLoop(interval time.Duration) {
	defer p.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = p.Flush(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

func batchSize(cfg config.Configuration) int {
	if cfg.BatchSize <= 0 {
		return 1000
	}
	return cfg.BatchSize
}

// Tier identifies this as the cold tier to processor.TierHooks callers.
func (h *hooks) Tier() record.Tier { return record.TierCold }

func (h *hooks) PrepareStore(ctx context.Context, r *record.Record) (*record.Record, error) {
	p := h.p
	bs := batchSize(p.cfg)
	watermark := int(0.9 * float64(bs))

	p.bufMu.Lock()
	if watermark > 0 && len(p.buf) >= watermark && !p.limiter.Allow() {
		p.bufMu.Unlock()
		return nil, xerrors.New(xerrors.BatchBufferBusy, "cold batch buffer above high-water mark").WithProcessor(p.ID())
	}
	p.buf = append(p.buf, r.Clone())
	full := len(p.buf) >= bs
	p.bufMu.Unlock()

	p.scheduleRetention(r)

	if full {
		if err := p.Flush(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (h *hooks) AfterRetrieve(_ context.Context, r *record.Record) (*record.Record, error) {
	return r, nil
}

func (h *hooks) Flush(ctx context.Context) error { return h.p.Flush(ctx) }

func (h *hooks) Capabilities() processor.Capabilities {
	return processor.Capabilities{
		SupportsFullText:     false,
		SupportsCompression:  true,
		SupportsArchival:     true,
		MaxReplicationFactor: 3,
	}
}

// scheduleRetention adds r to the retention queue based on its retention
// policy (permanent records are never scheduled).
func (p *Processor) scheduleRetention(r *record.Record) {
	if r.Meta.Retention.Policy == record.RetentionPermanent {
		return
	}
	ttl := config.RetentionDefaultsFor(r.Meta.Retention.Policy)
	if ttl <= 0 {
		return
	}
	base := time.UnixMilli(r.Timestamp)
	if r.Timestamp == 0 {
		base = time.Now()
	}
	p.retention.Add(base.Add(ttl), r.ID)
}

// Flush drains the batch buffer: compresses it as one unit and commits it
// via the persistence hook, then emits batch_processed. An empty buffer is
// a no-op, matching spec.md's literal scenario 5.
func (p *Processor) Flush(ctx context.Context) error {
	p.bufMu.Lock()
	batch := p.buf
	p.buf = nil
	p.bufMu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	blob, err := json.Marshal(batch)
	if err != nil {
		return xerrors.Wrap(err, xerrors.IndexInconsistency, "marshaling cold batch")
	}
	level := p.cfg.CompressionLevel
	if level == 0 {
		level = 3
	}
	compressed, err := p.compressor.Compress(level, blob)
	if err != nil {
		return xerrors.Wrap(err, xerrors.InvalidConfiguration, "compressing cold batch")
	}
	if pers := p.Persistence(); pers != nil {
		batchID := cos.GenID()
		if err := pers.SaveBatch(ctx, p.ID(), batchID, compressed); err != nil {
			return xerrors.Wrap(err, xerrors.InvalidConfiguration, "committing cold batch")
		}
	}
	if bus := p.Bus(); bus != nil {
		bus.Publish(events.Event{Topic: events.TopicBatchProcessed, Payload: BatchProcessedPayload{
			ProcessorID: p.ID(),
			Count:       len(batch),
			Ratio:       p.compressor.Ratio(),
		}})
	}
	return nil
}

// RunRetentionSweep deletes every record whose expiration key is <= today
// and whose policy is not permanent, per spec.md invariant 7.
func (p *Processor) RunRetentionSweep(ctx context.Context, today time.Time) (int, error) {
	due := p.retention.DueAsOf(today)
	deleted := 0
	for _, id := range due {
		if _, ok := p.archive.Get(id); ok {
			p.archive.Delete(id)
			if pers := p.Persistence(); pers != nil {
				_ = pers.DeleteRecord(ctx, p.ID(), id)
			}
			deleted++
			continue
		}
		if _, ok := p.RemoveForArchive(id); ok {
			deleted++
		}
	}
	if bus := p.Bus(); bus != nil && deleted > 0 {
		bus.Publish(events.Event{Topic: events.TopicRetentionCleanup, Payload: RetentionCleanupPayload{ProcessorID: p.ID(), Deleted: deleted}})
	}
	return deleted, nil
}

// RunCostTierSweep migrates records meeting all three thresholds
// (low frequency, old age, large size) to deep-archive storage: compressed,
// removed from the live table, tracked in the archive index.
func (p *Processor) RunCostTierSweep(ctx context.Context, now time.Time, th CostTierThresholds) (int, error) {
	migrated := 0
	for _, r := range p.Snapshot() {
		age := now.Sub(time.UnixMilli(r.Timestamp))
		if r.Meta.Access.Frequency > th.MaxFrequency {
			continue
		}
		if age < th.MinAge {
			continue
		}
		if r.Meta.Size < th.MinSize {
			continue
		}
		blob, err := json.Marshal(r)
		if err != nil {
			continue
		}
		level := p.cfg.CompressionLevel
		if level == 0 {
			level = 5 // deep archive favors ratio over speed
		}
		compressed, err := p.compressor.Compress(level, blob)
		if err != nil {
			continue
		}
		if _, ok := p.RemoveForArchive(r.ID); !ok {
			continue
		}
		if pers := p.Persistence(); pers != nil {
			_ = pers.SaveRecord(ctx, p.ID(), r.ID, compressed)
		}
		p.archive.Put(r.ID, ArchiveEntry{Location: "deep-archive", Compressed: true, Size: len(compressed)})
		migrated++
	}
	if bus := p.Bus(); bus != nil && migrated > 0 {
		bus.Publish(events.Event{Topic: events.TopicDeepArchive, Payload: DeepArchivePayload{ProcessorID: p.ID(), Migrated: migrated}})
	}
	return migrated, nil
}

// Retrieve overrides Base.Retrieve to fall back to the archive index (and
// persistence + decompression) when a record has been cost-tier migrated
// out of the live table. Deep-archive retrieval latency is otherwise
// unspecified by spec.md §9's open question (c); this path pays the
// decompress cost synchronously.
func (p *Processor) Retrieve(ctx context.Context, id string) (*record.Record, bool, error) {
	if r, ok, err := p.Base.Retrieve(ctx, id); ok || err != nil {
		return r, ok, err
	}

	entry, ok := p.archive.Get(id)
	if !ok {
		return nil, false, nil
	}
	pers := p.Persistence()
	if pers == nil {
		return nil, false, nil
	}
	blob, found, err := pers.LoadRecord(ctx, p.ID(), id)
	if err != nil || !found {
		return nil, false, err
	}
	raw := blob
	if entry.Compressed {
		raw, err = p.compressor.Decompress(blob)
		if err != nil {
			return nil, false, xerrors.Wrap(err, xerrors.IndexInconsistency, "decompressing archived record")
		}
	}
	var r record.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, xerrors.Wrap(err, xerrors.IndexInconsistency, "decoding archived record")
	}
	if bus := p.Bus(); bus != nil {
		bus.Publish(events.Event{Topic: events.TopicRecordRetrieved, Payload: processor.RetrievedPayload{ProcessorID: p.ID(), RecordID: id}})
	}
	return &r, true, nil
}

// Delete overrides Base.Delete to also clear any archive/retention
// bookkeeping for id.
func (p *Processor) Delete(ctx context.Context, id string) error {
	p.retention.Remove(id)
	if _, ok := p.archive.Get(id); ok {
		p.archive.Delete(id)
		if pers := p.Persistence(); pers != nil {
			_ = pers.DeleteRecord(ctx, p.ID(), id)
		}
		if bus := p.Bus(); bus != nil {
			bus.Publish(events.Event{Topic: events.TopicRecordDeleted, Payload: processor.DeletedPayload{ProcessorID: p.ID(), RecordID: id}})
		}
		return nil
	}
	return p.Base.Delete(ctx, id)
}

// ArchiveLen reports how many records currently live in deep-archive
// storage, used by tests and system metrics.
func (p *Processor) ArchiveLen() int { return p.archive.Len() }

// Shutdown stops the flush-interval timer, flushes any pending batch, and
// delegates to Base.Shutdown.
func (p *Processor) Shutdown(ctx context.Context) error {
	close(p.stopCh)
	p.wg.Wait()
	return p.Base.Shutdown(ctx)
}
