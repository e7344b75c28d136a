package storage

import (
	"encoding/binary"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"

	"graphstats/stats"
)

const (
	nodeKeyPrefix    = byte('n')
	highestNodeIdKey = "HIGHESTID"
)

func TestBadgerDB() *badger.DB {
	option := badger.DefaultOptions("").WithInMemory(true)
	db, err := badger.Open(option)
	if err != nil {
		panic(err)
	}
	return db
}

func GetNodeKey(id int64) []byte {
	buf := make([]byte, 9)
	buf[0] = nodeKeyPrefix
	binary.LittleEndian.PutUint64(buf[1:], uint64(id))
	return buf
}

// NodeRecordToBytes lays the record out as:
//
//	uint32 numLabels, then numLabels * int64
//	uint32 numIn,  then numIn  * (relType int64, degree int64)
//	uint32 numOut, then numOut * (relType int64, degree int64)
func NodeRecordToBytes(record *NodeRecord) []byte {
	size := 12 + 8*len(record.Labels) +
		16*len(record.InDegrees) + 16*len(record.OutDegrees)
	buf := make([]byte, 0, size)

	var scratch [8]byte
	putUint32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:4], v)
		buf = append(buf, scratch[:4]...)
	}
	putInt64 := func(v int64) {
		binary.LittleEndian.PutUint64(scratch[:], uint64(v))
		buf = append(buf, scratch[:]...)
	}

	putUint32(uint32(len(record.Labels)))
	for _, label := range record.Labels {
		putInt64(label)
	}
	putUint32(uint32(len(record.InDegrees)))
	for relType, degree := range record.InDegrees {
		putInt64(relType)
		putInt64(degree)
	}
	putUint32(uint32(len(record.OutDegrees)))
	for relType, degree := range record.OutDegrees {
		putInt64(relType)
		putInt64(degree)
	}
	return buf
}

func BytesToNodeRecord(buf []byte) (*NodeRecord, error) {
	offset := 0
	uint32At := func() (uint32, error) {
		if offset+4 > len(buf) {
			return 0, errors.New("node record is truncated")
		}
		v := binary.LittleEndian.Uint32(buf[offset:])
		offset += 4
		return v, nil
	}
	int64At := func() (int64, error) {
		if offset+8 > len(buf) {
			return 0, errors.New("node record is truncated")
		}
		v := binary.LittleEndian.Uint64(buf[offset:])
		offset += 8
		return int64(v), nil
	}

	record := &NodeRecord{
		InDegrees:  make(map[int64]int64),
		OutDegrees: make(map[int64]int64),
	}

	numLabels, err := uint32At()
	if err != nil {
		return nil, err
	}
	record.Labels = make([]int64, 0, numLabels)
	for i := uint32(0); i < numLabels; i++ {
		label, err := int64At()
		if err != nil {
			return nil, err
		}
		record.Labels = append(record.Labels, label)
	}

	numIn, err := uint32At()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numIn; i++ {
		relType, err := int64At()
		if err != nil {
			return nil, err
		}
		degree, err := int64At()
		if err != nil {
			return nil, err
		}
		record.InDegrees[relType] = degree
	}

	numOut, err := uint32At()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numOut; i++ {
		relType, err := int64At()
		if err != nil {
			return nil, err
		}
		degree, err := int64At()
		if err != nil {
			return nil, err
		}
		record.OutDegrees[relType] = degree
	}
	return record, nil
}

// BadgerNodeStore serves node records out of badger, with an optional
// ristretto read-through cache over the decoded records. Cache writes
// are best effort; every miss falls through to badger, so a dropped or
// stale entry costs a read, never correctness of the record served.
type BadgerNodeStore struct {
	db           *badger.DB
	cacheEnabled bool
	recordCache  *ristretto.Cache
}

func NewBadgerNodeStore(db *badger.DB, cacheEnabled bool) *BadgerNodeStore {
	recordCache, _ := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	return &BadgerNodeStore{
		db:           db,
		cacheEnabled: cacheEnabled,
		recordCache:  recordCache,
	}
}

func (store *BadgerNodeStore) txnGet(key []byte) ([]byte, error) {
	var valueBytes []byte
	err := store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		valueBytes, err = item.ValueCopy(nil)
		return err
	})
	return valueBytes, err
}

func (store *BadgerNodeStore) AddNode(id int64, record *NodeRecord) error {
	if store.cacheEnabled {
		store.recordCache.Del(id)
	}
	return store.db.Update(func(txn *badger.Txn) error {
		err := txn.Set(GetNodeKey(id), NodeRecordToBytes(record))
		if err != nil {
			return err
		}

		highest := int64(0)
		item, err := txn.Get([]byte(highestNodeIdKey))
		if err == nil {
			buf, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			highest = int64(binary.LittleEndian.Uint64(buf))
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if id+1 > highest {
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, uint64(id+1))
			return txn.Set([]byte(highestNodeIdKey), buf)
		}
		return nil
	})
}

// DeleteNode removes the record; the id bound is left as is, deleted
// ids stay addressable.
func (store *BadgerNodeStore) DeleteNode(id int64) error {
	if store.cacheEnabled {
		store.recordCache.Del(id)
	}
	return store.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(GetNodeKey(id))
	})
}

func (store *BadgerNodeStore) HighestNodeId() (int64, error) {
	buf, err := store.txnGet([]byte(highestNodeIdKey))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading highest node id")
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

func (store *BadgerNodeStore) NodeExists(id int64) (bool, error) {
	if store.cacheEnabled {
		if _, found := store.recordCache.Get(id); found {
			return true, nil
		}
	}
	err := store.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(GetNodeKey(id))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "checking node existence")
	}
	return true, nil
}

func (store *BadgerNodeStore) getRecord(id int64) (*NodeRecord, error) {
	if store.cacheEnabled {
		if cached, found := store.recordCache.Get(id); found {
			return cached.(*NodeRecord), nil
		}
	}
	buf, err := store.txnGet(GetNodeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading node record")
	}
	record, err := BytesToNodeRecord(buf)
	if err != nil {
		return nil, err
	}
	if store.cacheEnabled {
		store.recordCache.Set(id, record, 1)
	}
	return record, nil
}

func (store *BadgerNodeStore) NodeRelationshipTypes(id int64) ([]int64, error) {
	record, err := store.getRecord(id)
	if err != nil {
		return nil, err
	}
	return record.RelationshipTypes(), nil
}

func (store *BadgerNodeStore) NodeLabels(id int64) ([]int64, error) {
	record, err := store.getRecord(id)
	if err != nil {
		return nil, err
	}
	return record.Labels, nil
}

func (store *BadgerNodeStore) NodeDegree(
	id int64, direction stats.Direction, relType int64) (int64, error) {
	record, err := store.getRecord(id)
	if err != nil {
		return 0, err
	}
	return record.Degree(direction, relType), nil
}
