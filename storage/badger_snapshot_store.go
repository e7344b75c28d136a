package storage

import (
	"github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
)

const SnapshotKey = "STATSSNAPSHOT"

// BadgerSnapshotStore keeps the encoded snapshot under a single
// well-known key, for deployments that already run the graph on badger.
// Badger transactions make the replace atomic on their own.
type BadgerSnapshotStore struct {
	db *badger.DB
}

func NewBadgerSnapshotStore(db *badger.DB) *BadgerSnapshotStore {
	return &BadgerSnapshotStore{db: db}
}

func (store *BadgerSnapshotStore) GetSnapshot() ([]byte, error) {
	var snapshotBytes []byte
	err := store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(SnapshotKey))
		if err != nil {
			return err
		}
		snapshotBytes, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading snapshot")
	}
	return snapshotBytes, nil
}

func (store *BadgerSnapshotStore) PutSnapshot(buf []byte) error {
	err := store.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(SnapshotKey), buf)
	})
	return errors.Wrap(err, "writing snapshot")
}
