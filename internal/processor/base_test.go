package processor_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// genericHooks is a minimal DomainHooks that indexes by Type, used to
// exercise Base without pulling in a concrete domain package.
type genericHooks struct{}

func (genericHooks) Domain() record.Domain { return record.DomainGeneric }
func (genericHooks) RequiredIndices() []string { return []string{"type", "category"} }
func (genericHooks) Validate(r *record.Record) error {
	if r.Type == "" {
		return xerrors.New(xerrors.InvalidConfiguration, "type required")
	}
	return nil
}
func (genericHooks) ExtractIndexKeys(r *record.Record) map[string][]string {
	keys := map[string][]string{"type": {r.Type}}
	if r.Meta.Source != "" {
		keys["category"] = []string{r.Meta.Source}
	}
	return keys
}

// passthroughTier is a minimal TierHooks with no compression/buffering.
type passthroughTier struct{}

func (passthroughTier) Tier() record.Tier { return record.TierHot }
func (passthroughTier) PrepareStore(_ context.Context, r *record.Record) (*record.Record, error) {
	return r, nil
}
func (passthroughTier) AfterRetrieve(_ context.Context, r *record.Record) (*record.Record, error) {
	return r, nil
}
func (passthroughTier) Flush(context.Context) error { return nil }
func (passthroughTier) Capabilities() processor.Capabilities {
	return processor.Capabilities{MaxReplicationFactor: 1}
}

func newTestBase(t *testing.T, maxRecords int) *processor.Base {
	t.Helper()
	cfg := config.DefaultHot()
	cfg.MaxRecords = maxRecords
	return processor.NewBase(processor.Deps{
		Domain: record.DomainGeneric,
		Tier:   record.TierHot,
		Config: cfg,
		Hooks:  genericHooks{},
		Tiers:  passthroughTier{},
	})
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	b := newTestBase(t, 100)
	ctx := context.Background()

	rec := &record.Record{ID: "r1", Type: "widget", Data: "payload"}
	require.NoError(t, b.Store(ctx, rec))

	got, ok, err := b.Retrieve(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "widget", got.Type)
	assert.Equal(t, "payload", got.Data)
	assert.Equal(t, 1, got.Meta.Access.Frequency)
}

func TestRetrieveMissingIsNotAnError(t *testing.T) {
	b := newTestBase(t, 100)
	got, ok, err := b.Retrieve(context.Background(), "nope")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestQueryUsesIndexAndRespectsLimit(t *testing.T) {
	b := newTestBase(t, 100)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Store(ctx, &record.Record{ID: fmt.Sprintf("r%d", i), Type: "widget"}))
	}
	require.NoError(t, b.Store(ctx, &record.Record{ID: "other", Type: "gadget"}))

	res, err := b.Query(ctx, processor.Query{
		Filters: map[string]any{"type": "widget"},
		Options: processor.QueryOptions{Limit: 3},
	})
	require.NoError(t, err)
	assert.Len(t, res.Data, 3)
	assert.Equal(t, []string{"type"}, res.Meta.IndexesUsed)
}

func TestQueryWithMultipleFiltersRequiresEveryFieldToMatch(t *testing.T) {
	b := newTestBase(t, 100)
	ctx := context.Background()

	widgetA := &record.Record{ID: "r1", Type: "widget"}
	widgetA.Meta.Source = "a"
	widgetB := &record.Record{ID: "r2", Type: "widget"}
	widgetB.Meta.Source = "b"
	gadgetA := &record.Record{ID: "r3", Type: "gadget"}
	gadgetA.Meta.Source = "a"

	require.NoError(t, b.Store(ctx, widgetA))
	require.NoError(t, b.Store(ctx, widgetB))
	require.NoError(t, b.Store(ctx, gadgetA))

	res, err := b.Query(ctx, processor.Query{Filters: map[string]any{"type": "widget", "category": "a"}})
	require.NoError(t, err)
	require.Len(t, res.Data, 1, "a record matching only one of the two filters must not be returned")
	assert.Equal(t, "r1", res.Data[0].ID)
}

func TestDeleteRemovesFromEveryIndex(t *testing.T) {
	b := newTestBase(t, 100)
	ctx := context.Background()
	require.NoError(t, b.Store(ctx, &record.Record{ID: "r1", Type: "widget"}))

	require.NoError(t, b.Delete(ctx, "r1"))

	res, err := b.Query(ctx, processor.Query{Filters: map[string]any{"type": "widget"}})
	require.NoError(t, err)
	assert.Empty(t, res.Data)

	err = b.Delete(ctx, "r1")
	assert.True(t, xerrors.Is(err, xerrors.ProcessorNotFound))
}

func TestEvictionRemovesOldestTenPercentOnCapacityBoundary(t *testing.T) {
	b := newTestBase(t, 10)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Store(ctx, &record.Record{ID: fmt.Sprintf("id-%02d", i), Type: "widget"}))
	}

	// The 11th insert crosses the capacity boundary and must evict exactly
	// ceil(0.1*10)=1 record before admitting the new one.
	require.NoError(t, b.Store(ctx, &record.Record{ID: "id-10", Type: "widget"}))

	_, ok, err := b.Retrieve(ctx, "id-00")
	require.NoError(t, err)
	assert.False(t, ok, "oldest-accessed record (lowest id, tie-broken) should have been evicted")

	assert.Equal(t, 10, b.GetMetrics().RecordCount)
}

func TestEvictionSkipsPermanentRetention(t *testing.T) {
	b := newTestBase(t, 2)
	ctx := context.Background()
	permanent := &record.Record{ID: "keep", Type: "widget"}
	permanent.Meta = record.NewMeta()
	permanent.Meta.Retention.Policy = record.RetentionPermanent
	require.NoError(t, b.Store(ctx, permanent))
	require.NoError(t, b.Store(ctx, &record.Record{ID: "evict-me", Type: "widget"}))

	require.NoError(t, b.Store(ctx, &record.Record{ID: "third", Type: "widget"}))

	_, ok, _ := b.Retrieve(ctx, "keep")
	assert.True(t, ok, "permanent record must never be evicted")
}

func TestGetHealthReportsSampledCPUAndMemoryUsage(t *testing.T) {
	b := processor.NewBase(processor.Deps{
		Domain:  record.DomainGeneric,
		Tier:    record.TierHot,
		Config:  config.DefaultHot(),
		Hooks:   genericHooks{},
		Tiers:   passthroughTier{},
		Sampler: func() (float64, float64) { return 95, 42 },
	})
	h, err := b.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 95.0, h.CPUUsage)
	assert.Equal(t, 42.0, h.MemoryUsage)
}

func TestHealthUnhealthyWithErrorRate(t *testing.T) {
	b := newTestBase(t, 100)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_ = b.Store(ctx, &record.Record{ID: fmt.Sprintf("bad-%d", i), Type: ""}) // fails validation
	}
	h, err := b.GetHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, processor.Unhealthy, h.Status)
}

func TestAccessHistoryBoundedAtHundredEntries(t *testing.T) {
	b := newTestBase(t, 100)
	ctx := context.Background()
	require.NoError(t, b.Store(ctx, &record.Record{ID: "r1", Type: "widget"}))
	for i := 0; i < 150; i++ {
		_, _, _ = b.Retrieve(ctx, "r1")
	}
	got, _, _ := b.Retrieve(ctx, "r1")
	assert.LessOrEqual(t, len(got.Meta.Access.History()), 100)
}

func TestShutdownIsIdempotentAndClearsRecords(t *testing.T) {
	b := newTestBase(t, 100)
	ctx := context.Background()
	require.NoError(t, b.Store(ctx, &record.Record{ID: "r1", Type: "widget"}))

	require.NoError(t, b.Shutdown(ctx))
	require.NoError(t, b.Shutdown(ctx))

	_, ok, _ := b.Retrieve(ctx, "r1")
	assert.False(t, ok)

	h, _ := b.GetHealth(ctx)
	assert.Equal(t, processor.Offline, h.Status)
}
