// Package logs implements the logs domain specialization (spec.md §4.4):
// level/application/service/host/time-bucket/traceId/requestId/tag/
// errorType indices, enum validation, and a retention queue identical in
// shape to the cold tier's.
package logs

import (
	"time"

	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/retentionq"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

const (
	IndexLevel       = "level"
	IndexApplication = "application"
	IndexService     = "service"
	IndexHost        = "host"
	IndexMinute      = "minute"
	IndexHour        = "hour"
	IndexDay         = "day"
	IndexTraceID     = "traceId"
	IndexRequestID   = "requestId"
	IndexTag         = "tag"
	IndexErrorType   = "errorType"
)

// Level is the log severity enum.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

func validLevel(l Level) bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	}
	return false
}

// retentionFor maps a log level onto the category-default retention
// duration from spec.md §4.3 (debug=1d, info=30d, warn=90d, error=365d,
// fatal=never).
func retentionFor(l Level) time.Duration {
	switch l {
	case LevelDebug:
		return 24 * time.Hour
	case LevelInfo:
		return 30 * 24 * time.Hour
	case LevelWarn:
		return 90 * 24 * time.Hour
	case LevelError:
		return 365 * 24 * time.Hour
	case LevelFatal:
		return 0 // never expires
	default:
		return 30 * 24 * time.Hour
	}
}

// Payload is the domain-shaped data a log record carries.
type Payload struct {
	Level       Level
	Application string
	Service     string
	Host        string
	TraceID     string
	RequestID   string
	ErrorType   string
	Message     string
	Tags        []string
}

type Hooks struct {
	retention *retentionq.RetentionQueue
}

// New returns logs domain hooks with their own retention queue attached.
func New() *Hooks { return &Hooks{retention: retentionq.NewRetentionQueue()} }

func (Hooks) Domain() record.Domain { return record.DomainLogs }

func (Hooks) RequiredIndices() []string {
	return []string{IndexLevel, IndexApplication, IndexService, IndexHost, IndexMinute, IndexHour, IndexDay, IndexTraceID, IndexRequestID, IndexTag, IndexErrorType}
}

// Validate enforces the level enum and the mandatory source fields
// (application/service/host).
func (Hooks) Validate(r *record.Record) error {
	p, ok := r.Data.(Payload)
	if !ok {
		return xerrors.New(xerrors.InvalidConfiguration, "log record data must be logs.Payload")
	}
	if !validLevel(p.Level) {
		return xerrors.New(xerrors.InvalidConfiguration, "log record has an invalid level")
	}
	if p.Application == "" || p.Service == "" || p.Host == "" {
		return xerrors.New(xerrors.InvalidConfiguration, "log record requires application, service and host")
	}
	return nil
}

func (h *Hooks) ExtractIndexKeys(r *record.Record) map[string][]string {
	p, ok := r.Data.(Payload)
	if !ok {
		return nil
	}
	t := time.UnixMilli(r.Timestamp).UTC()
	keys := map[string][]string{
		IndexLevel:       {string(p.Level)},
		IndexApplication: {p.Application},
		IndexService:     {p.Service},
		IndexHost:        {p.Host},
		IndexMinute:      {t.Format("2006-01-02T15:04")},
		IndexHour:        {t.Format("2006-01-02T15")},
		IndexDay:         {t.Format("2006-01-02")},
	}
	if p.TraceID != "" {
		keys[IndexTraceID] = []string{p.TraceID}
	}
	if p.RequestID != "" {
		keys[IndexRequestID] = []string{p.RequestID}
	}
	if p.ErrorType != "" {
		keys[IndexErrorType] = []string{p.ErrorType}
	}
	if len(p.Tags) > 0 {
		keys[IndexTag] = append([]string(nil), p.Tags...)
	}

	if r.Meta.Retention.Policy != record.RetentionPermanent {
		ttl := retentionFor(p.Level)
		if ttl > 0 {
			base := time.UnixMilli(r.Timestamp)
			h.retention.Add(base.Add(ttl), r.ID)
		}
	}
	return keys
}

// RunRetentionSweep deletes every log record whose expiration key is <=
// today, mirroring the cold tier's sweep for processors where logs are
// stored directly (independent of which tier backs the processor).
func (h *Hooks) RunRetentionSweep(today time.Time, deleteFn func(id string) error) (int, error) {
	due := h.retention.DueAsOf(today)
	deleted := 0
	for _, id := range due {
		if err := deleteFn(id); err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Retention exposes the queue for tests asserting scheduling behavior.
func (h *Hooks) Retention() *retentionq.RetentionQueue { return h.retention }
