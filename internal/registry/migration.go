package registry

import (
	"context"
	"time"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/cos"
	"github.com/notyesbut/shardregistry/internal/events"
	"github.com/notyesbut/shardregistry/internal/processor"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// MigrationStatus is one of pending/copying/cutover/completed/failed.
type MigrationStatus string

const (
	MigrationPending   MigrationStatus = "pending"
	MigrationCopying   MigrationStatus = "copying"
	MigrationCutover   MigrationStatus = "cutover"
	MigrationCompleted MigrationStatus = "completed"
	MigrationFailed    MigrationStatus = "failed"
)

// MigrationPlan describes one source->target tier migration.
type MigrationPlan struct {
	ID                string
	Source            string
	Target            string
	Strategy          string
	Status            MigrationStatus
	StartTime         int64
	EstimatedDuration time.Duration
}

// MigratedPayload/MigrationFailedPayload are mcp:* bus payloads.
type (
	MigratedPayload struct {
		PlanID string
		Source string
		Target string
	}
	MigrationFailedPayload struct {
		PlanID string
		Source string
		Reason string
	}
)

// MigrateProcessor moves sourceID's records to a freshly constructed
// processor on targetTier, following the clone -> copy -> cutover ->
// retire-source protocol (spec.md §4.5). On any failure before cutover the
// target is torn down, the source keeps serving, and mcp:migration-failed
// is emitted; nothing served by the source is ever dropped.
func (r *Registry) MigrateProcessor(ctx context.Context, sourceID string, domain record.Domain, targetTier record.Tier, cfg config.Configuration) (string, error) {
	r.mu.RLock()
	src, ok := r.processors[sourceID]
	r.mu.RUnlock()
	if !ok {
		return "", xerrors.New(xerrors.ProcessorNotFound, "migration source not registered").WithProcessor(sourceID)
	}
	if !r.canMigrate(sourceID) {
		return "", xerrors.New(xerrors.MigrationInProgress, "source processor is not in a migratable state").WithProcessor(sourceID)
	}

	plan := MigrationPlan{
		ID:        cos.GenID(),
		Source:    sourceID,
		Target:    "",
		Strategy:  "copy",
		Status:    MigrationPending,
		StartTime: time.Now().UnixMilli(),
	}
	r.setState(sourceID, StateMigrating)
	defer func() {
		if st, ok := r.State(sourceID); ok && st == StateMigrating {
			r.setState(sourceID, StateHealthy)
		}
	}()

	targetID, err := r.RegisterProcessor(RegisterInput{Domain: domain, Tier: targetTier, Config: cfg})
	if err != nil {
		r.failMigration(plan, "", err)
		return "", err
	}
	plan.Target = targetID
	plan.Status = MigrationCopying

	target, ok := r.GetProcessor(targetID)
	if !ok {
		r.failMigration(plan, targetID, xerrors.New(xerrors.ProcessorNotFound, "migration target vanished after registration"))
		return "", xerrors.New(xerrors.ProcessorNotFound, "migration target vanished after registration")
	}

	if err := r.copyRecords(ctx, src, target); err != nil {
		_ = r.UnregisterProcessor(ctx, targetID, false)
		r.failMigration(plan, targetID, err)
		return "", err
	}

	// Both processors now hold every record the source had at snapshot
	// time. Writes are not mirrored: a record the source accepts after the
	// snapshot is not copied to the target. Cutover removes the source from
	// routing (the target has been routable since registration); the source
	// is retired immediately after.
	plan.Status = MigrationCutover
	md := src.GetMetadata()
	r.mu.Lock()
	r.unindexLocked(sourceID, md.Domain, md.Tier)
	r.mu.Unlock()

	plan.Status = MigrationCompleted
	if appender, ok := target.(interface{ AppendMigration(processor.MigrationRecord) }); ok {
		appender.AppendMigration(processor.MigrationRecord{
			PlanID:    plan.ID,
			Source:    sourceID,
			Target:    targetID,
			Strategy:  plan.Strategy,
			StartedAt: plan.StartTime,
			EndedAt:   time.Now().UnixMilli(),
			Status:    string(MigrationCompleted),
		})
	}

	r.bus.Publish(events.Event{Topic: events.TopicMigrated, Payload: MigratedPayload{PlanID: plan.ID, Source: sourceID, Target: targetID}})
	r.log.WithField("plan_id", plan.ID).WithField("source", sourceID).WithField("target", targetID).Info("migration completed")

	_ = r.UnregisterProcessor(ctx, sourceID, true)
	return targetID, nil
}

func (r *Registry) failMigration(plan MigrationPlan, targetID string, cause error) {
	plan.Status = MigrationFailed
	r.log.WithField("plan_id", plan.ID).WithField("source", plan.Source).WithField("err", cause.Error()).Warn("migration failed before cutover, source keeps serving")
	r.bus.Publish(events.Event{Topic: events.TopicMigrationFailed, Payload: MigrationFailedPayload{PlanID: plan.ID, Source: plan.Source, Reason: cause.Error()}})
}

// copyRecords clones every record currently held by src and stores it on
// target. A snapshotter interface keeps this independent of the concrete
// Base/cold.Processor type.
func (r *Registry) copyRecords(ctx context.Context, src, target processor.Processor) error {
	snapper, ok := src.(interface{ Snapshot() []*record.Record })
	if !ok {
		return xerrors.New(xerrors.InvalidConfiguration, "migration source does not support snapshotting")
	}
	for _, rec := range snapper.Snapshot() {
		if err := target.Store(ctx, rec.Clone()); err != nil {
			return err
		}
	}
	return nil
}
