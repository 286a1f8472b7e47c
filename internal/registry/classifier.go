package registry

import (
	"time"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
)

// StartClassifier launches the hourly hot/cold reclassification sweep
// (spec.md §4.5).
func (r *Registry) StartClassifier() {
	r.wg.Add(1)
	go r.classifyLoop()
}

func (r *Registry) classifyLoop() {
	defer r.wg.Done()
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			r.runClassifySweep()
		}
	}
}

// RunClassifySweepNow executes one classification sweep immediately, the
// same work the ticker in classifyLoop performs hourly. Exposed so callers
// (and tests) can drive a sweep deterministically instead of waiting on the
// ticker.
func (r *Registry) RunClassifySweepNow() {
	r.runClassifySweep()
}

// runClassifySweep computes each processor's hourly access frequency and
// queues a migration when it crosses the hot/cold threshold, skipping any
// processor still inside its migration cooldown window.
func (r *Registry) runClassifySweep() {
	now := time.Now()
	for _, p := range r.GetAllProcessors() {
		id := p.ID()
		if !r.canMigrate(id) {
			continue
		}
		if !r.cooldownElapsed(id, now) {
			continue
		}

		md := p.GetMetadata()
		freq := accessFrequencyPerHour(md, now)

		switch {
		case md.Tier == record.TierCold && freq >= r.cfg.HotThreshold:
			r.queueMigration(id, md.Domain, record.TierHot, md.Configuration)
			r.touchClassified(id, now)
		case md.Tier == record.TierHot && freq <= r.cfg.ColdThreshold:
			r.queueMigration(id, md.Domain, record.TierCold, md.Configuration)
			r.touchClassified(id, now)
		}
	}
}

// accessFrequencyPerHour is accessCount divided by hours since the
// processor's last access, per spec.md §4.5's literal
// accessFrequencyPerHour = accessCount / hoursSinceLastAccess: a processor
// that was hammered long ago but has sat idle since reads as stale, not
// merely "age-diluted". A never-accessed processor (LastAccessed==0) scores
// against its full epoch age, correctly reading as cold. The one-hour floor
// keeps a just-touched processor from spiking to a meaningless near-infinite
// frequency.
func accessFrequencyPerHour(md processor.Metadata, now time.Time) float64 {
	hoursSinceLastAccess := now.Sub(time.UnixMilli(md.LastAccessed)).Hours()
	if hoursSinceLastAccess < 1 {
		hoursSinceLastAccess = 1
	}
	return float64(md.AccessFrequency) / hoursSinceLastAccess
}

func (r *Registry) cooldownElapsed(id string, now time.Time) bool {
	r.lastClassifiedMu.Lock()
	defer r.lastClassifiedMu.Unlock()
	last, ok := r.lastClassified[id]
	if !ok {
		return true
	}
	return now.Sub(last) >= r.cfg.MigrationCooldown
}

func (r *Registry) touchClassified(id string, now time.Time) {
	r.lastClassifiedMu.Lock()
	defer r.lastClassifiedMu.Unlock()
	r.lastClassified[id] = now
}

// queueMigration starts a migration in its own goroutine so the classify
// sweep isn't blocked by a single slow migration.
func (r *Registry) queueMigration(sourceID string, domain record.Domain, target record.Tier, cfg config.Configuration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.MigrateProcessor(r.ctx, sourceID, domain, target, cfg); err != nil {
			r.log.WithField("proc_id", sourceID).WithField("err", err.Error()).Warn("classifier-triggered migration failed")
		}
	}()
}
