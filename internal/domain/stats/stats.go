// Package stats implements the stats domain specialization (spec.md
// §4.4): metricName/category/source/time-bucket/dimension/tag indices,
// enum validation, and a cached aggregation table invalidated on write.
package stats

import (
	"fmt"
	"time"

	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

const (
	IndexMetricName = "metricName"
	IndexCategory   = "category"
	IndexSource     = "source"
	IndexMinute     = "minute"
	IndexHour       = "hour"
	IndexDay        = "day"
	IndexDimension  = "dimension"
	IndexTag        = "tag"
)

type AggregationLevel string

const (
	AggMinute AggregationLevel = "minute"
	AggHour   AggregationLevel = "hour"
	AggDay    AggregationLevel = "day"
)

type DataType string

const (
	DataTypeGauge     DataType = "gauge"
	DataTypeCounter   DataType = "counter"
	DataTypeHistogram DataType = "histogram"
)

type Environment string

const (
	EnvProd    Environment = "prod"
	EnvStaging Environment = "staging"
	EnvDev     Environment = "dev"
)

// Payload is the domain-shaped data a stats record carries.
type Payload struct {
	MetricName      string
	Category        string
	Source          string
	Value           float64
	AggregationLevel AggregationLevel
	DataType        DataType
	Environment     Environment
	Dimension       string
	DimensionValue  string
	Tags            []string
}

func validAggLevel(l AggregationLevel) bool {
	switch l {
	case AggMinute, AggHour, AggDay:
		return true
	}
	return false
}

func validDataType(t DataType) bool {
	switch t {
	case DataTypeGauge, DataTypeCounter, DataTypeHistogram:
		return true
	}
	return false
}

func validEnvironment(e Environment) bool {
	switch e {
	case EnvProd, EnvStaging, EnvDev:
		return true
	}
	return false
}

type Hooks struct {
	cache *AggregationCache
}

// New returns stats domain hooks with a fresh aggregation cache attached.
func New() *Hooks { return &Hooks{cache: NewAggregationCache()} }

func (Hooks) Domain() record.Domain { return record.DomainStats }

func (Hooks) RequiredIndices() []string {
	return []string{IndexMetricName, IndexCategory, IndexSource, IndexMinute, IndexHour, IndexDay, IndexDimension, IndexTag}
}

func (Hooks) Validate(r *record.Record) error {
	p, ok := r.Data.(Payload)
	if !ok {
		return xerrors.New(xerrors.InvalidConfiguration, "stats record data must be stats.Payload")
	}
	if p.MetricName == "" {
		return xerrors.New(xerrors.InvalidConfiguration, "stats record requires a metricName")
	}
	if !validAggLevel(p.AggregationLevel) {
		return xerrors.New(xerrors.InvalidConfiguration, "stats record has an invalid aggregationLevel")
	}
	if !validDataType(p.DataType) {
		return xerrors.New(xerrors.InvalidConfiguration, "stats record has an invalid dataType")
	}
	if !validEnvironment(p.Environment) {
		return xerrors.New(xerrors.InvalidConfiguration, "stats record has an invalid environment")
	}
	return nil
}

func (h *Hooks) ExtractIndexKeys(r *record.Record) map[string][]string {
	p, ok := r.Data.(Payload)
	if !ok {
		return nil
	}
	t := time.UnixMilli(r.Timestamp).UTC()
	keys := map[string][]string{
		IndexMetricName: {p.MetricName},
		IndexCategory:   {p.Category},
		IndexSource:     {p.Source},
		IndexMinute:     {t.Format("2006-01-02T15:04")},
		IndexHour:       {t.Format("2006-01-02T15")},
		IndexDay:        {t.Format("2006-01-02")},
	}
	if p.Dimension != "" {
		keys[IndexDimension] = []string{fmt.Sprintf("%s=%s", p.Dimension, p.DimensionValue)}
	}
	if len(p.Tags) > 0 {
		keys[IndexTag] = append([]string(nil), p.Tags...)
	}
	h.cache.InvalidateMetric(p.MetricName, p.Category)
	return keys
}

// Cache exposes the per-domain-hooks aggregation cache so query helpers
// built atop the processor can read/populate it directly.
func (h *Hooks) Cache() *AggregationCache { return h.cache }
