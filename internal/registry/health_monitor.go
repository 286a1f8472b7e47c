package registry

import (
	"context"
	"time"

	"github.com/notyesbut/shardregistry/internal/events"
	"github.com/notyesbut/shardregistry/internal/processor"
)

// RecoveredPayload/ReplacedPayload are mcp:* bus payloads for the health
// monitor's restart/replace outcomes.
type (
	RecoveredPayload struct{ ID string }
	ReplacedPayload  struct {
		OldID string
		NewID string
	}
)

// StartMaintenance launches the background health-check loop (spec.md
// §4.5). It runs until the registry's own context, created by New, is
// canceled by Shutdown.
func (r *Registry) StartMaintenance() {
	r.wg.Add(1)
	go r.healthLoop()
}

func (r *Registry) healthLoop() {
	defer r.wg.Done()
	interval := r.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			r.runHealthSweep()
		}
	}
}

// RunHealthSweepNow executes one health-check sweep immediately, the same
// work the ticker in healthLoop performs every HealthCheckInterval. Exposed
// so callers (and tests) can drive a sweep deterministically instead of
// waiting on the ticker.
func (r *Registry) RunHealthSweepNow() {
	r.runHealthSweep()
}

// runHealthSweep polls every registered processor once and acts on
// unhealthy ones: remove from routing, attempt a restart, and replace on
// failure.
func (r *Registry) runHealthSweep() {
	for _, p := range r.GetAllProcessors() {
		id := p.ID()
		h, err := p.GetHealth(r.ctx)
		unhealthy := err != nil || h.CPUUsage >= 90 || h.MemoryUsage >= 90
		if !unhealthy {
			continue
		}
		r.log.WithField("proc_id", id).Warn("processor unhealthy, removing from routing")
		r.handleUnhealthy(id, p)
	}
}

func (r *Registry) handleUnhealthy(id string, p processor.Processor) {
	md := p.GetMetadata()

	r.mu.Lock()
	r.unindexLocked(id, md.Domain, md.Tier)
	r.mu.Unlock()
	r.setState(id, StateUnhealthy)
	if r.mset != nil {
		r.mset.ProcessorUp.WithLabelValues(id, string(md.Domain), string(md.Tier)).Set(0)
	}

	if r.restartProcessor(id, p, md) {
		return
	}

	r.log.WithField("proc_id", id).Warn("restart failed, replacing processor")
	newID, err := r.RegisterProcessor(RegisterInput{Domain: md.Domain, Tier: md.Tier, Config: md.Configuration})
	if err != nil {
		r.log.WithField("proc_id", id).WithField("err", err.Error()).Error("replacement processor could not be created")
		return
	}
	r.bus.Publish(events.Event{Topic: events.TopicReplaced, Payload: ReplacedPayload{OldID: id, NewID: newID}})

	r.mu.Lock()
	delete(r.processors, id)
	r.mu.Unlock()
	r.setState(id, StateTerminated)
	_ = p.Shutdown(r.ctx)
}

// restartProcessor attempts shutdown->reinitialize in place (same id,
// domain, tier, config). Returns true if the processor is healthy again
// and reinserted into routing.
func (r *Registry) restartProcessor(id string, p processor.Processor, md processor.Metadata) bool {
	if err := p.Shutdown(r.ctx); err != nil {
		return false
	}

	r.mu.Lock()
	f, ok := r.factories[factoryKey{md.Domain, md.Tier}]
	r.mu.Unlock()
	if !ok {
		return false
	}
	fresh, err := f(id, md.Domain, md.Tier, md.Configuration)
	if err != nil {
		return false
	}
	if _, err := fresh.GetHealth(r.ctx); err != nil {
		_ = fresh.Shutdown(r.ctx)
		return false
	}

	r.mu.Lock()
	r.processors[id] = fresh
	r.indexLocked(id, md.Domain, md.Tier)
	r.mu.Unlock()
	r.setState(id, StateHealthy)
	if r.mset != nil {
		r.mset.ProcessorUp.WithLabelValues(id, string(md.Domain), string(md.Tier)).Set(1)
	}
	r.bus.Publish(events.Event{Topic: events.TopicRecovered, Payload: RecoveredPayload{ID: id}})
	return true
}

// DrainProcessor stops id from receiving new traffic (already removed
// from routing by the caller) and waits up to DrainGracePeriod for
// in-flight work to settle. Base processors have no queue depth to drain
// against, so this is a bounded wait used as a courtesy window before
// Shutdown; it always returns nil once the grace period elapses.
func (r *Registry) DrainProcessor(ctx context.Context, id string, p processor.Processor) error {
	r.setState(id, StateDraining)
	grace := r.cfg.DrainGracePeriod
	if grace <= 0 {
		return nil
	}
	select {
	case <-time.After(grace):
	case <-ctx.Done():
	}
	return nil
}
