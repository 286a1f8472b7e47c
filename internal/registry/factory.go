package registry

import (
	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/domain/chat"
	"github.com/notyesbut/shardregistry/internal/domain/logs"
	"github.com/notyesbut/shardregistry/internal/domain/stats"
	"github.com/notyesbut/shardregistry/internal/domain/user"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/tier/cold"
	"github.com/notyesbut/shardregistry/internal/tier/hot"
)

// RegisterDefaultFactories wires every (domain, tier) combination named in
// spec.md §4.4 against the hot/cold tier implementations, sharing this
// registry's persistence hook and metrics set across every processor it
// constructs.
func (r *Registry) RegisterDefaultFactories() {
	domains := []struct {
		domain record.Domain
		hooks  func() processor.DomainHooks
	}{
		{record.DomainUser, func() processor.DomainHooks { return user.New() }},
		{record.DomainChat, func() processor.DomainHooks { return chat.New() }},
		{record.DomainStats, func() processor.DomainHooks { return stats.New() }},
		{record.DomainLogs, func() processor.DomainHooks { return logs.New() }},
	}

	for _, d := range domains {
		d := d
		r.RegisterFactory(d.domain, record.TierHot, func(id string, domain record.Domain, _ record.Tier, cfg config.Configuration) (processor.Processor, error) {
			deps := processor.Deps{
				ID:      id,
				Domain:  domain,
				Tier:    record.TierHot,
				Config:  cfg,
				Hooks:   d.hooks(),
				Bus:     r.bus,
				Persist: r.persist,
				Metrics: r.mset,
			}
			deps.Tiers = hot.New(cfg)
			return processor.NewBase(deps), nil
		})

		r.RegisterFactory(d.domain, record.TierCold, func(id string, domain record.Domain, _ record.Tier, cfg config.Configuration) (processor.Processor, error) {
			deps := processor.Deps{
				ID:      id,
				Domain:  domain,
				Tier:    record.TierCold,
				Config:  cfg,
				Hooks:   d.hooks(),
				Bus:     r.bus,
				Persist: r.persist,
				Metrics: r.mset,
			}
			return cold.New(deps), nil
		})
	}
}
