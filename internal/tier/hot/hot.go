// Package hot implements the hot-tier specialization (spec.md §4.2):
// uncompressed, low-latency, large cache, strong-ish single-node
// consistency, no write batching.
package hot

import (
	"context"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
)

// Hooks implements processor.TierHooks for the hot tier: every Store is
// immediately durable in the in-memory table and its indices, with no
// compression and no buffering.
type Hooks struct {
	cfg config.Configuration
}

// New returns hot-tier hooks for cfg (expected to come from
// config.DefaultHot, possibly overridden).
func New(cfg config.Configuration) *Hooks { return &Hooks{cfg: cfg} }

func (h *Hooks) Tier() record.Tier { return record.TierHot }

// PrepareStore is a passthrough: hot records are never compressed.
func (h *Hooks) PrepareStore(_ context.Context, r *record.Record) (*record.Record, error) {
	return r, nil
}

// AfterRetrieve is a passthrough: nothing to decompress.
func (h *Hooks) AfterRetrieve(_ context.Context, r *record.Record) (*record.Record, error) {
	return r, nil
}

// Flush is a no-op: hot records are never buffered.
func (h *Hooks) Flush(context.Context) error { return nil }

func (h *Hooks) Capabilities() processor.Capabilities {
	return processor.Capabilities{
		SupportsFullText:     true,
		SupportsCompression:  false,
		SupportsArchival:     false,
		MaxReplicationFactor: 5,
	}
}
