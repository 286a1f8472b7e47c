package registry

import (
	"time"

	"github.com/notyesbut/shardregistry/internal/domain/logs"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/tier/cold"
)

// StartRetentionSweep launches the daily retention/cost-tier sweep (spec.md
// §4.3: "a daily sweeper"). It runs until the registry's own context,
// created by New, is canceled by Shutdown.
func (r *Registry) StartRetentionSweep() {
	r.wg.Add(1)
	go r.retentionSweepLoop()
}

func (r *Registry) retentionSweepLoop() {
	defer r.wg.Done()
	t := time.NewTicker(24 * time.Hour)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			r.RunRetentionSweepNow()
		}
	}
}

// RunRetentionSweepNow executes one retention/cost-tier sweep immediately,
// the same work the ticker in retentionSweepLoop performs daily. Exposed so
// callers (and tests) can drive a sweep deterministically instead of
// waiting on the ticker.
func (r *Registry) RunRetentionSweepNow() {
	now := time.Now()
	th := cold.CostTierThresholds{
		MaxFrequency: r.cfg.CostTierMaxFrequency,
		MinAge:       r.cfg.CostTierMinAge,
		MinSize:      r.cfg.CostTierMinSize,
	}
	for _, p := range r.GetAllProcessors() {
		id := p.ID()

		if cp, ok := p.(*cold.Processor); ok {
			if _, err := cp.RunRetentionSweep(r.ctx, now); err != nil {
				r.log.WithField("proc_id", id).WithField("err", err.Error()).Warn("cold retention sweep failed")
			}
			if _, err := cp.RunCostTierSweep(r.ctx, now, th); err != nil {
				r.log.WithField("proc_id", id).WithField("err", err.Error()).Warn("cold cost-tier sweep failed")
			}
		}

		if hb, ok := p.(interface{ Hooks() processor.DomainHooks }); ok {
			if lh, ok := hb.Hooks().(*logs.Hooks); ok {
				deleted, err := lh.RunRetentionSweep(now, func(recID string) error { return p.Delete(r.ctx, recID) })
				if err != nil {
					r.log.WithField("proc_id", id).WithField("err", err.Error()).Warn("logs retention sweep failed")
				} else if deleted > 0 {
					r.log.WithField("proc_id", id).WithField("deleted", deleted).Info("logs retention sweep removed expired records")
				}
			}
		}
	}
}
