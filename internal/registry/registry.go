// Package registry implements the central registry (spec.md §4.5): the
// only point of contact for callers. It registers/unregisters processors,
// routes and load-balances queries, monitors health, classifies hot/cold
// tiers, and orchestrates migrations.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/events"
	"github.com/notyesbut/shardregistry/internal/logging"
	"github.com/notyesbut/shardregistry/internal/metrics"
	"github.com/notyesbut/shardregistry/internal/persistence"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// Factory builds a processor for a (domain, tier) combination.
type Factory func(id string, domain record.Domain, tier record.Tier, cfg config.Configuration) (processor.Processor, error)

type factoryKey struct {
	domain record.Domain
	tier   record.Tier
}

// RegisterInput is the argument to RegisterProcessor.
type RegisterInput struct {
	ID     string
	Domain record.Domain
	Tier   record.Tier
	Config config.Configuration
}

// Registry is the central routing/lifecycle/migration orchestrator.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]processor.Processor
	states     map[string]State
	domainIdx  map[record.Domain]map[string]struct{}
	tierIdx    map[record.Tier]map[string]struct{}
	migrations map[string][]processor.MigrationRecord

	factories map[factoryKey]Factory

	rrMu sync.Mutex
	rr   map[record.Domain]uint64

	lastClassifiedMu sync.Mutex
	lastClassified   map[string]time.Time

	cfg     config.RegistryConfig
	bus     *events.Bus
	mset    *metrics.Set
	persist persistence.Hook
	log     logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures optional Registry collaborators.
type Option func(*Registry)

// WithMetrics attaches a metrics.Set registered against reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Registry) { r.mset = metrics.NewSet(reg) }
}

// WithPersistence attaches a persistence hook shared by every processor
// constructed through this registry's factories.
func WithPersistence(p persistence.Hook) Option {
	return func(r *Registry) { r.persist = p }
}

// New constructs a registry from cfg and starts no background tasks until
// StartMaintenance is called.
func New(cfg config.RegistryConfig, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		processors:     map[string]processor.Processor{},
		states:         map[string]State{},
		domainIdx:      map[record.Domain]map[string]struct{}{},
		tierIdx:        map[record.Tier]map[string]struct{}{},
		migrations:     map[string][]processor.MigrationRecord{},
		factories:      map[factoryKey]Factory{},
		rr:             map[record.Domain]uint64{},
		lastClassified: map[string]time.Time{},
		cfg:            cfg,
		bus:            events.New(),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, o := range opts {
		o(r)
	}
	r.log = logging.For("registry", nil)
	return r
}

// Bus exposes the registry-level event bus so callers can subscribe to
// mcp:* topics.
func (r *Registry) Bus() *events.Bus { return r.bus }

// RegisterFactory installs the constructor used for a (domain, tier) pair.
func (r *Registry) RegisterFactory(domain record.Domain, tier record.Tier, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factoryKey{domain, tier}] = f
}

// RegisterProcessor constructs a processor via the (domain, tier) factory,
// initializes it, and inserts it into the routing maps, emitting
// mcp:registered.
func (r *Registry) RegisterProcessor(in RegisterInput) (string, error) {
	if err := in.Config.Validate(); err != nil {
		return "", err
	}
	r.mu.Lock()
	f, ok := r.factories[factoryKey{in.Domain, in.Tier}]
	r.mu.Unlock()
	if !ok {
		return "", xerrors.New(xerrors.InvalidConfiguration, "no factory registered for domain/tier combination")
	}

	r.setState(in.ID, StateInitializing)
	p, err := f(in.ID, in.Domain, in.Tier, in.Config)
	if err != nil {
		return "", err
	}
	id := p.ID()

	r.mu.Lock()
	r.processors[id] = p
	r.indexLocked(id, in.Domain, in.Tier)
	r.mu.Unlock()
	r.setState(id, StateHealthy)

	if r.mset != nil {
		r.mset.ProcessorUp.WithLabelValues(id, string(in.Domain), string(in.Tier)).Set(1)
	}
	r.bus.Publish(events.Event{Topic: events.TopicRegistered, Payload: RegisteredPayload{ID: id, Domain: in.Domain, Tier: in.Tier}})
	r.log.WithField("proc_id", id).WithField("domain", string(in.Domain)).WithField("tier", string(in.Tier)).Info("processor registered")
	return id, nil
}

func (r *Registry) indexLocked(id string, domain record.Domain, tier record.Tier) {
	if r.domainIdx[domain] == nil {
		r.domainIdx[domain] = map[string]struct{}{}
	}
	r.domainIdx[domain][id] = struct{}{}
	if r.tierIdx[tier] == nil {
		r.tierIdx[tier] = map[string]struct{}{}
	}
	r.tierIdx[tier][id] = struct{}{}
}

func (r *Registry) unindexLocked(id string, domain record.Domain, tier record.Tier) {
	delete(r.domainIdx[domain], id)
	delete(r.tierIdx[tier], id)
}

// UnregisterProcessor removes a processor from routing and shuts it down.
// graceful=true drains in-flight work first (DrainProcessor).
func (r *Registry) UnregisterProcessor(ctx context.Context, id string, graceful bool) error {
	r.mu.Lock()
	p, ok := r.processors[id]
	if !ok {
		r.mu.Unlock()
		return xerrors.New(xerrors.ProcessorNotFound, "processor not registered").WithProcessor(id)
	}
	md := p.GetMetadata()
	r.unindexLocked(id, md.Domain, md.Tier)
	delete(r.processors, id)
	r.mu.Unlock()

	if graceful {
		if err := r.DrainProcessor(ctx, id, p); err != nil {
			r.log.WithField("proc_id", id).Warn("drain did not complete cleanly before shutdown")
		}
	}
	r.setState(id, StateTerminated)
	if r.mset != nil {
		r.mset.ProcessorUp.WithLabelValues(id, string(md.Domain), string(md.Tier)).Set(0)
	}
	r.bus.Publish(events.Event{Topic: events.TopicUnregistered, Payload: UnregisteredPayload{ID: id}})
	return p.Shutdown(ctx)
}

// GetProcessor returns a processor by id.
func (r *Registry) GetProcessor(id string) (processor.Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[id]
	return p, ok
}

// GetAllProcessors returns every registered processor, sorted by id.
func (r *Registry) GetAllProcessors() []processor.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.processors))
	for id := range r.processors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]processor.Processor, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.processors[id])
	}
	return out
}

// GetByDomain returns every processor registered for domain d.
func (r *Registry) GetByDomain(d record.Domain) []processor.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.domainIdx[d])
}

// GetByTier returns every processor registered for tier t.
func (r *Registry) GetByTier(t record.Tier) []processor.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.tierIdx[t])
}

func (r *Registry) collectLocked(idSet map[string]struct{}) []processor.Processor {
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]processor.Processor, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.processors[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Shutdown cancels every background task and shuts down every registered
// processor.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancel()
	r.wg.Wait()
	for _, p := range r.GetAllProcessors() {
		_ = p.Shutdown(ctx)
	}
	return nil
}

// RegisteredPayload/UnregisteredPayload are mcp:* bus payloads.
type (
	RegisteredPayload struct {
		ID     string
		Domain record.Domain
		Tier   record.Tier
	}
	UnregisteredPayload struct{ ID string }
)
