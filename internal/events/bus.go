// Package events implements the typed publish/subscribe bus shared by
// processors and the registry, per the event surface in spec.md §6 and the
// cross-cutting event-emission design note in §9.
package events

import "sync"

// Topic names one of the stable event topics.
type Topic string

const (
	TopicRegistered        Topic = "mcp:registered"
	TopicUnregistered      Topic = "mcp:unregistered"
	TopicUnhealthy         Topic = "mcp:unhealthy"
	TopicRecovered         Topic = "mcp:recovered"
	TopicReplaced          Topic = "mcp:replaced"
	TopicMigrated          Topic = "mcp:migrated"
	TopicMigrationFailed   Topic = "mcp:migration-failed"
	TopicRecordStored      Topic = "record_stored"
	TopicRecordRetrieved   Topic = "record_retrieved"
	TopicRecordDeleted     Topic = "record_deleted"
	TopicQueryExecuted     Topic = "query_executed"
	TopicBatchProcessed    Topic = "batch_processed"
	TopicRetentionCleanup  Topic = "retention_cleanup"
	TopicDeepArchive       Topic = "deep_archive_migration"
	TopicShutdown          Topic = "processor_shutdown"
	TopicError             Topic = "error"
)

// Event is a single published message: a topic plus an opaque payload.
// Concrete payload shapes live next to their producers (e.g.
// processor.StoredPayload, registry.MigratedPayload).
type Event struct {
	Topic   Topic
	Payload any
}

// Handler receives published events. It must not block; slow consumers
// should buffer internally.
type Handler func(Event)

// Bus is a minimal fan-out publish/subscribe object. One Bus is shared by
// a processor and its owning registry so that upward notifications
// (processor -> registry) replace the cyclic references a language with
// inheritance would otherwise need (spec.md §9).
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{handlers: map[Topic][]Handler{}}
}

// Subscribe registers h for topic, returning an unsubscribe func.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
	idx := len(b.handlers[topic]) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[topic]
		if idx < len(hs) {
			hs[idx] = nil
		}
	}
}

// Publish synchronously fans e out to every subscriber of e.Topic. Handlers
// run in the publisher's goroutine; a handler that needs to do slow work
// should hand off to its own goroutine.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[e.Topic]...)
	b.mu.RUnlock()
	for _, h := range hs {
		if h != nil {
			h(e)
		}
	}
}
