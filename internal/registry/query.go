package registry

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notyesbut/shardregistry/internal/events"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// DispatchOptions controls how Query resolves candidates. Replicated
// requests every replica in the domain in parallel and aggregates;
// otherwise a single replica is chosen by the configured load-balancing
// strategy.
type DispatchOptions struct {
	Replicated bool
}

// Query resolves the candidate processor set for q.Domain (or every
// registered processor if q.Domain is empty), dispatches, and aggregates.
// A deadline derived from the caller's context governs every
// sub-operation; results already collected when the deadline expires are
// returned with Meta.Partial=true instead of failing outright.
func (r *Registry) Query(ctx context.Context, q processor.Query, opts DispatchOptions) (processor.QueryResult, error) {
	candidates := r.healthyCandidates(q)
	if len(candidates) == 0 {
		return processor.QueryResult{}, xerrors.New(xerrors.NoProcessorsAvailable, "no healthy processors match the query")
	}

	if q.Domain != "" && !opts.Replicated {
		p, err := r.selectReplica(q.Domain, candidates)
		if err != nil {
			return processor.QueryResult{}, err
		}
		return p.Query(ctx, q)
	}

	return r.fanOut(ctx, candidates, q)
}

func (r *Registry) healthyCandidates(q processor.Query) []processor.Processor {
	var pool []processor.Processor
	if q.Domain != "" {
		pool = r.GetByDomain(q.Domain)
	} else {
		pool = r.GetAllProcessors()
	}
	out := make([]processor.Processor, 0, len(pool))
	for _, p := range pool {
		if st, ok := r.State(p.ID()); ok && (st == StateUnhealthy || st == StateTerminated || st == StateDraining) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// fanOut dispatches q to every candidate in parallel via errgroup (each
// goroutine always returns a nil group-error so one replica's failure
// never cancels its siblings; failures are recorded per-replica instead)
// and aggregates successful results, honoring ctx's deadline with a
// partial-result marker on expiry.
func (r *Registry) fanOut(ctx context.Context, candidates []processor.Processor, q processor.Query) (processor.QueryResult, error) {
	start := time.Now()
	type outcome struct {
		id  string
		res processor.QueryResult
		err error
	}
	results := make([]outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range candidates {
		i, p := i, p
		g.Go(func() error {
			res, err := p.Query(gctx, q)
			results[i] = outcome{id: p.ID(), res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var aggregated processor.QueryResult
	aggregated.Data = make([]*record.Record, 0)
	partial := ctx.Err() != nil
	succeeded := 0
	for _, o := range results {
		if o.err != nil {
			r.log.WithField("proc_id", o.id).WithField("err", o.err.Error()).Warn("replica query failed during fan-out")
			continue
		}
		succeeded++
		aggregated.Data = append(aggregated.Data, o.res.Data...)
		aggregated.TotalCount += o.res.TotalCount
		aggregated.Meta.IndexesUsed = append(aggregated.Meta.IndexesUsed, o.res.Meta.IndexesUsed...)
	}
	if succeeded == 0 {
		return processor.QueryResult{}, xerrors.New(xerrors.NoProcessorsAvailable, "every candidate processor failed during fan-out")
	}
	sort.Slice(aggregated.Data, func(i, j int) bool { return aggregated.Data[i].ID < aggregated.Data[j].ID })
	aggregated.Meta.ExecutionTime = time.Since(start)
	aggregated.Meta.Partial = partial
	if r.mset != nil {
		r.mset.QueryResults.WithLabelValues(string(q.Domain)).Observe(float64(aggregated.TotalCount))
	}
	r.bus.Publish(events.Event{Topic: events.TopicQueryExecuted, Payload: FanOutPayload{Domain: q.Domain, Replicas: len(candidates), Succeeded: succeeded}})
	return aggregated, nil
}

// FanOutPayload is published on query_executed after a multi-processor
// dispatch.
type FanOutPayload struct {
	Domain    record.Domain
	Replicas  int
	Succeeded int
}
