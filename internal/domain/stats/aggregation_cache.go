package stats

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// AggregationCache is the cached aggregation table keyed by
// (metric, aggType, options-hash), invalidated on any write to that metric
// or its category, per spec.md §4.4. The options hash uses xxhash, the
// same non-cryptographic hash family the teacher uses for cluster-node
// digests (cluster map, OneOfOne/xxhash) and the rest of the retrieved
// pack uses for cache keys.
type AggregationCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	// byMetric/byCategory index which cache keys to drop when a metric or
	// category receives a write.
	byMetric   map[string]map[string]struct{}
	byCategory map[string]map[string]struct{}
}

type cacheEntry struct {
	value any
}

// NewAggregationCache returns an empty cache.
func NewAggregationCache() *AggregationCache {
	return &AggregationCache{
		entries:    map[string]cacheEntry{},
		byMetric:   map[string]map[string]struct{}{},
		byCategory: map[string]map[string]struct{}{},
	}
}

// Key computes the cache key for (metric, aggType, options), hashing the
// options string with xxhash so arbitrarily large option sets collapse to
// a fixed-width key component.
func Key(metric string, aggType AggregationLevel, options string) string {
	h := xxhash.Sum64String(options)
	return fmt.Sprintf("%s|%s|%x", metric, aggType, h)
}

// Put stores value under key, tracking it against metric/category so a
// later write can invalidate it.
func (c *AggregationCache) Put(key, metric, category string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value}
	c.track(c.byMetric, metric, key)
	c.track(c.byCategory, category, key)
}

func (c *AggregationCache) track(index map[string]map[string]struct{}, bucket, key string) {
	if bucket == "" {
		return
	}
	set, ok := index[bucket]
	if !ok {
		set = map[string]struct{}{}
		index[bucket] = set
	}
	set[key] = struct{}{}
}

// Get returns the cached value for key, if present.
func (c *AggregationCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.value, ok
}

// InvalidateMetric drops every cache entry associated with metric or
// category.
func (c *AggregationCache) InvalidateMetric(metric, category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byMetric[metric] {
		delete(c.entries, key)
	}
	delete(c.byMetric, metric)
	for key := range c.byCategory[category] {
		delete(c.entries, key)
	}
	delete(c.byCategory, category)
}

// Len reports the number of cached aggregation results, used by tests.
func (c *AggregationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
