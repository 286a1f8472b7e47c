package processor

import (
	"math"
	"sort"

	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// evictLocked removes the oldest-accessed ceil(10% of maxRecords) records,
// ordered by AccessPattern.LastAccessed ascending, skipping any record
// whose retention policy is permanent. Caller holds b.mu.
func (b *Base) evictLocked() error {
	target := int(math.Ceil(0.1 * float64(b.cfg.MaxRecords)))
	if target <= 0 {
		target = 1
	}

	type candidate struct {
		id   string
		last int64
	}
	candidates := make([]candidate, 0, len(b.records))
	for id, r := range b.records {
		if r.Meta.Retention.Policy == record.RetentionPermanent {
			continue
		}
		candidates = append(candidates, candidate{id: id, last: r.Meta.Access.LastAccessed})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].last != candidates[j].last {
			return candidates[i].last < candidates[j].last
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) == 0 {
		return xerrors.New(xerrors.CapacityExceeded, "no evictable records; all permanent").WithProcessor(b.id)
	}
	if target > len(candidates) {
		target = len(candidates)
	}
	for _, c := range candidates[:target] {
		r := b.records[c.id]
		b.unindexLocked(r)
		delete(b.records, c.id)
		b.totalSz -= int64(r.Meta.Size)
	}
	return nil
}
