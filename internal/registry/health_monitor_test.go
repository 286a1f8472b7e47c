package registry_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/events"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/registry"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// fakeHealthProcessor is a minimal processor.Processor whose reported
// health is fully controlled by the test, used to drive the registry's
// health-sweep restart/replace path without depending on real CPU load.
type fakeHealthProcessor struct {
	id        string
	md        processor.Metadata
	unhealthy bool
	shutdowns int
}

func (f *fakeHealthProcessor) ID() string { return f.id }
func (f *fakeHealthProcessor) Store(context.Context, *record.Record) error { return nil }
func (f *fakeHealthProcessor) Retrieve(context.Context, string) (*record.Record, bool, error) {
	return nil, false, nil
}
func (f *fakeHealthProcessor) Query(context.Context, processor.Query) (processor.QueryResult, error) {
	return processor.QueryResult{}, nil
}
func (f *fakeHealthProcessor) Delete(context.Context, string) error { return nil }
func (f *fakeHealthProcessor) Update(context.Context, *record.Record) error { return nil }
func (f *fakeHealthProcessor) GetHealth(context.Context) (processor.Health, error) {
	if f.unhealthy {
		return processor.Health{Status: processor.Unhealthy, CPUUsage: 95}, nil
	}
	return processor.Health{Status: processor.Healthy, CPUUsage: 5, MemoryUsage: 5}, nil
}
func (f *fakeHealthProcessor) GetMetrics() processor.Metrics     { return processor.Metrics{} }
func (f *fakeHealthProcessor) GetMetadata() processor.Metadata   { return f.md }
func (f *fakeHealthProcessor) GetCapabilities() processor.Capabilities {
	return processor.Capabilities{}
}
func (f *fakeHealthProcessor) GetConfiguration() config.Configuration { return f.md.Configuration }
func (f *fakeHealthProcessor) Shutdown(context.Context) error {
	f.shutdowns++
	return nil
}

func TestHealthSweepRestartsAnUnhealthyProcessor(t *testing.T) {
	cfg := config.DefaultRegistryConfig()
	cfg.DrainGracePeriod = 0
	r := registry.New(cfg)

	attempt := 0
	r.RegisterFactory(record.DomainUser, record.TierHot, func(id string, domain record.Domain, tier record.Tier, c config.Configuration) (processor.Processor, error) {
		attempt++
		if id == "" {
			id = "fake-initial"
		}
		return &fakeHealthProcessor{
			id:        id,
			unhealthy: attempt == 1, // the processor in routing reports cpuUsage=95 once
			md:        processor.Metadata{ID: id, Domain: domain, Tier: tier, Configuration: c},
		}, nil
	})

	id, err := r.RegisterProcessor(registry.RegisterInput{Domain: record.DomainUser, Tier: record.TierHot, Config: config.DefaultHot()})
	require.NoError(t, err)

	var recovered, replaced int
	r.Bus().Subscribe(events.TopicRecovered, func(events.Event) { recovered++ })
	r.Bus().Subscribe(events.TopicReplaced, func(events.Event) { replaced++ })

	r.RunHealthSweepNow()

	assert.Equal(t, 1, recovered, "a successful restart must emit exactly one mcp:recovered")
	assert.Equal(t, 0, replaced)

	st, ok := r.State(id)
	require.True(t, ok)
	assert.Equal(t, registry.StateHealthy, st)

	p, ok := r.GetProcessor(id)
	require.True(t, ok)
	h, err := p.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, processor.Healthy, h.Status)
}

func TestHealthSweepReplacesProcessorWhenRestartFails(t *testing.T) {
	cfg := config.DefaultRegistryConfig()
	cfg.DrainGracePeriod = 0
	r := registry.New(cfg)

	attempt := 0
	r.RegisterFactory(record.DomainUser, record.TierHot, func(id string, domain record.Domain, tier record.Tier, c config.Configuration) (processor.Processor, error) {
		attempt++
		if attempt == 2 {
			// Simulates the in-place restart itself failing to come back up.
			return nil, xerrors.New(xerrors.InvalidConfiguration, "simulated restart failure")
		}
		if id == "" {
			id = fmt.Sprintf("fake-%d", attempt)
		}
		return &fakeHealthProcessor{
			id:        id,
			unhealthy: attempt == 1,
			md:        processor.Metadata{ID: id, Domain: domain, Tier: tier, Configuration: c},
		}, nil
	})

	oldID, err := r.RegisterProcessor(registry.RegisterInput{Domain: record.DomainUser, Tier: record.TierHot, Config: config.DefaultHot()})
	require.NoError(t, err)

	var recovered, replaced int
	var newID string
	r.Bus().Subscribe(events.TopicRecovered, func(events.Event) { recovered++ })
	r.Bus().Subscribe(events.TopicReplaced, func(e events.Event) {
		replaced++
		newID = e.Payload.(registry.ReplacedPayload).NewID
	})

	r.RunHealthSweepNow()

	assert.Equal(t, 0, recovered)
	assert.Equal(t, 1, replaced, "a failed restart must fall through to exactly one mcp:replaced")

	_, stillThere := r.GetProcessor(oldID)
	assert.False(t, stillThere, "the failed-restart processor must be removed from routing")

	require.NotEmpty(t, newID)
	p, ok := r.GetProcessor(newID)
	require.True(t, ok)
	h, err := p.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, processor.Healthy, h.Status)
}
