package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notyesbut/shardregistry/internal/domain/stats"
	"github.com/notyesbut/shardregistry/internal/record"
)

func TestValidateRejectsUnknownEnums(t *testing.T) {
	h := stats.New()

	err := h.Validate(&record.Record{Data: stats.Payload{
		MetricName: "", AggregationLevel: stats.AggMinute, DataType: stats.DataTypeGauge, Environment: stats.EnvProd,
	}})
	require.Error(t, err)

	err = h.Validate(&record.Record{Data: stats.Payload{
		MetricName: "cpu", AggregationLevel: "bogus", DataType: stats.DataTypeGauge, Environment: stats.EnvProd,
	}})
	require.Error(t, err)

	err = h.Validate(&record.Record{Data: stats.Payload{
		MetricName: "cpu", AggregationLevel: stats.AggMinute, DataType: "bogus", Environment: stats.EnvProd,
	}})
	require.Error(t, err)

	err = h.Validate(&record.Record{Data: stats.Payload{
		MetricName: "cpu", AggregationLevel: stats.AggMinute, DataType: stats.DataTypeGauge, Environment: "bogus",
	}})
	require.Error(t, err)

	err = h.Validate(&record.Record{Data: stats.Payload{
		MetricName: "cpu", AggregationLevel: stats.AggMinute, DataType: stats.DataTypeGauge, Environment: stats.EnvProd,
	}})
	assert.NoError(t, err)
}

func TestExtractIndexKeysBuildsTimeBucketsAndOptionalIndices(t *testing.T) {
	h := stats.New()
	r := &record.Record{ID: "s1", Timestamp: 1700000000000, Data: stats.Payload{
		MetricName: "cpu", Category: "system", Source: "host-1",
		AggregationLevel: stats.AggMinute, DataType: stats.DataTypeGauge, Environment: stats.EnvProd,
		Dimension: "region", DimensionValue: "us-east", Tags: []string{"prod"},
	}}
	keys := h.ExtractIndexKeys(r)
	assert.Equal(t, []string{"cpu"}, keys[stats.IndexMetricName])
	assert.Equal(t, []string{"system"}, keys[stats.IndexCategory])
	assert.Equal(t, []string{"region=us-east"}, keys[stats.IndexDimension])
	assert.Equal(t, []string{"prod"}, keys[stats.IndexTag])
	assert.NotEmpty(t, keys[stats.IndexMinute])
	assert.NotEmpty(t, keys[stats.IndexHour])
	assert.NotEmpty(t, keys[stats.IndexDay])
}

func TestExtractIndexKeysInvalidatesCacheForMetricAndCategory(t *testing.T) {
	h := stats.New()
	cache := h.Cache()
	key := stats.Key("cpu", stats.AggMinute, "")
	cache.Put(key, "cpu", "system", 42.0)
	require.Equal(t, 1, cache.Len())

	h.ExtractIndexKeys(&record.Record{Timestamp: 1700000000000, Data: stats.Payload{
		MetricName: "cpu", Category: "system", AggregationLevel: stats.AggMinute,
	}})

	_, ok := cache.Get(key)
	assert.False(t, ok, "a write to the same metric must invalidate its cached aggregation")
	assert.Equal(t, 0, cache.Len())
}

func TestAggregationCacheInvalidateMetricLeavesOtherMetricsAlone(t *testing.T) {
	c := stats.NewAggregationCache()
	kCPU := stats.Key("cpu", stats.AggMinute, "")
	kMem := stats.Key("mem", stats.AggMinute, "")
	c.Put(kCPU, "cpu", "system", 1.0)
	c.Put(kMem, "mem", "system", 2.0)

	c.InvalidateMetric("cpu", "")

	_, ok := c.Get(kCPU)
	assert.False(t, ok)
	v, ok := c.Get(kMem)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
}
