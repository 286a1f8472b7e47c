package registry

import (
	"context"
	"math/rand"
	"sort"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// selectReplica picks one processor from candidates per the configured
// load-balancing strategy (spec.md §4.5). Candidates are sorted by id
// first so every strategy breaks ties the same way.
func (r *Registry) selectReplica(domain record.Domain, candidates []processor.Processor) (processor.Processor, error) {
	if len(candidates) == 0 {
		return nil, xerrors.New(xerrors.NoProcessorsAvailable, "no healthy processors for domain").WithProcessor(string(domain))
	}
	sorted := append([]processor.Processor(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	switch r.cfg.LoadBalancing {
	case config.StrategyWeighted:
		return r.selectWeighted(sorted), nil
	case config.StrategyLeastLoaded:
		return r.selectLeastLoaded(sorted), nil
	case config.StrategyRandom:
		return sorted[rand.Intn(len(sorted))], nil
	default:
		return r.selectRoundRobin(domain, sorted), nil
	}
}

func (r *Registry) selectRoundRobin(domain record.Domain, sorted []processor.Processor) processor.Processor {
	r.rrMu.Lock()
	n := r.rr[domain]
	r.rr[domain] = n + 1
	r.rrMu.Unlock()
	return sorted[int(n)%len(sorted)]
}

// selectWeighted assigns weight = (1/avgQueryTime) * (1 - errorRate) to
// each candidate and selects by cumulative probability.
func (r *Registry) selectWeighted(sorted []processor.Processor) processor.Processor {
	weights := make([]float64, len(sorted))
	var total float64
	for i, p := range sorted {
		m := p.GetMetrics()
		avgMs := m.AverageResponseTime.Seconds() * 1000
		if avgMs <= 0 {
			avgMs = 1
		}
		w := (1 / avgMs) * (1 - m.ErrorRate)
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return sorted[0]
	}
	pick := rand.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if pick <= cum {
			return sorted[i]
		}
	}
	return sorted[len(sorted)-1]
}

// selectLeastLoaded scores each candidate as
// cpuUsage + memoryUsage + avgQueryTime/1000 and picks the minimum, ties
// broken by id order (sorted already guarantees this).
func (r *Registry) selectLeastLoaded(sorted []processor.Processor) processor.Processor {
	best := sorted[0]
	bestScore := scoreOf(best)
	for _, p := range sorted[1:] {
		s := scoreOf(p)
		if s < bestScore {
			best, bestScore = p, s
		}
	}
	return best
}

func scoreOf(p processor.Processor) float64 {
	h, err := p.GetHealth(context.Background())
	if err != nil {
		return 1 << 30
	}
	m := p.GetMetrics()
	return h.CPUUsage + h.MemoryUsage + m.AverageResponseTime.Seconds()*1000/1000
}
