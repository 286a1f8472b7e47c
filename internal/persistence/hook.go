// Package persistence defines the pluggable PersistenceHook contract
// (spec.md §6's persisted-state layout) and a default in-memory/BuntDB
// implementation. The core never assumes a concrete on-disk format.
package persistence

import "context"

// Hook is the contract a processor's storage layer drives. The core ships
// an in-memory default (Default, below); a production deployment supplies
// its own (e.g. backed by an actual disk format), which is out of scope
// for this module per spec.md §1.
type Hook interface {
	SaveRecord(ctx context.Context, processorID, id string, blob []byte) error
	LoadRecord(ctx context.Context, processorID, id string) ([]byte, bool, error)
	DeleteRecord(ctx context.Context, processorID, id string) error
	ListIDs(ctx context.Context, processorID string) ([]string, error)

	SaveIndex(ctx context.Context, processorID, indexName string, snapshot []byte) error
	LoadIndex(ctx context.Context, processorID, indexName string) ([]byte, bool, error)

	SaveBatch(ctx context.Context, processorID string, batchID string, blob []byte) error
	LoadBatch(ctx context.Context, processorID string, batchID string) ([]byte, bool, error)
}
