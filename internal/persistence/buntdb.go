package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// Default is the in-memory (optionally file-backed) PersistenceHook
// shipped with the core, backed by BuntDB: an embeddable, indexable
// key/value store that matches the shape of the persisted-state contract
// (records, index snapshots, batch blobs) without committing the core to
// any particular on-disk format.
type Default struct {
	db *buntdb.DB
}

// NewDefault opens a BuntDB store. path=":memory:" keeps everything
// in-process with nothing touching disk.
func NewDefault(path string) (*Default, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.InvalidConfiguration, "opening persistence store")
	}
	return &Default{db: db}, nil
}

func recordKey(processorID, id string) string { return fmt.Sprintf("rec:%s:%s", processorID, id) }
func indexKey(processorID, name string) string { return fmt.Sprintf("idx:%s:%s", processorID, name) }
func batchKey(processorID, batchID string) string { return fmt.Sprintf("batch:%s:%s", processorID, batchID) }

func (d *Default) SaveRecord(_ context.Context, processorID, id string, blob []byte) error {
	return d.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(recordKey(processorID, id), string(blob), nil)
		return err
	})
}

func (d *Default) LoadRecord(_ context.Context, processorID, id string) ([]byte, bool, error) {
	var val string
	err := d.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(recordKey(processorID, id))
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (d *Default) DeleteRecord(_ context.Context, processorID, id string) error {
	err := d.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(recordKey(processorID, id))
		return err
	})
	if err == buntdb.ErrNotFound {
		return nil
	}
	return err
}

func (d *Default) ListIDs(_ context.Context, processorID string) ([]string, error) {
	prefix := fmt.Sprintf("rec:%s:", processorID)
	var ids []string
	err := d.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(key, _ string) bool {
			ids = append(ids, strings.TrimPrefix(key, prefix))
			return true
		})
	})
	return ids, err
}

func (d *Default) SaveIndex(_ context.Context, processorID, indexName string, snapshot []byte) error {
	return d.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(indexKey(processorID, indexName), string(snapshot), nil)
		return err
	})
}

func (d *Default) LoadIndex(_ context.Context, processorID, indexName string) ([]byte, bool, error) {
	var val string
	err := d.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(indexKey(processorID, indexName))
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (d *Default) SaveBatch(_ context.Context, processorID, batchID string, blob []byte) error {
	return d.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(batchKey(processorID, batchID), string(blob), nil)
		return err
	})
}

func (d *Default) LoadBatch(_ context.Context, processorID, batchID string) ([]byte, bool, error) {
	var val string
	err := d.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(batchKey(processorID, batchID))
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

// Close releases the underlying store.
func (d *Default) Close() error { return d.db.Close() }
