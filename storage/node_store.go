package storage

import (
	"sync"

	"github.com/pkg/errors"

	"graphstats/stats"
)

// ErrNodeNotFound is returned by the detail queries when the node does
// not exist — including the window between an existence check and the
// detail fetch, when a concurrent delete can race the sampler.
var ErrNodeNotFound = errors.New("node not found")

// NodeStore is the graph storage surface the sampler consumes.
type NodeStore interface {
	// HighestNodeId is the current exclusive upper bound on node ids.
	HighestNodeId() (int64, error)
	NodeExists(id int64) (bool, error)
	NodeRelationshipTypes(id int64) ([]int64, error)
	NodeLabels(id int64) ([]int64, error)
	NodeDegree(id int64, direction stats.Direction, relType int64) (int64, error)
}

// NodeRecord is one node's structural data: its labels and its in/out
// degree per relationship type.
type NodeRecord struct {
	Labels     []int64
	InDegrees  map[int64]int64
	OutDegrees map[int64]int64
}

// RelationshipTypes are the types with at least one incident
// relationship in either direction.
func (record *NodeRecord) RelationshipTypes() []int64 {
	seen := make(map[int64]bool)
	relTypes := make([]int64, 0, len(record.InDegrees))
	for relType := range record.InDegrees {
		if !seen[relType] {
			seen[relType] = true
			relTypes = append(relTypes, relType)
		}
	}
	for relType := range record.OutDegrees {
		if !seen[relType] {
			seen[relType] = true
			relTypes = append(relTypes, relType)
		}
	}
	return relTypes
}

func (record *NodeRecord) Degree(direction stats.Direction, relType int64) int64 {
	if direction == stats.Incoming {
		return record.InDegrees[relType]
	}
	return record.OutDegrees[relType]
}

type InMemoryNodeStore struct {
	nodes         map[int64]*NodeRecord
	highestNodeId int64
	mutex         sync.Mutex
}

func NewInMemoryNodeStore() *InMemoryNodeStore {
	return &InMemoryNodeStore{
		nodes:         make(map[int64]*NodeRecord),
		highestNodeId: 0,
	}
}

func (store *InMemoryNodeStore) AddNode(id int64, record *NodeRecord) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.nodes[id] = record
	if id+1 > store.highestNodeId {
		store.highestNodeId = id + 1
	}
}

// DeleteNode removes the node but does not shrink the id bound; deleted
// ids stay addressable, which is what the live ratio measures.
func (store *InMemoryNodeStore) DeleteNode(id int64) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.nodes, id)
}

func (store *InMemoryNodeStore) HighestNodeId() (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.highestNodeId, nil
}

func (store *InMemoryNodeStore) NodeExists(id int64) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	_, ok := store.nodes[id]
	return ok, nil
}

func (store *InMemoryNodeStore) getRecord(id int64) (*NodeRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return record, nil
}

func (store *InMemoryNodeStore) NodeRelationshipTypes(id int64) ([]int64, error) {
	record, err := store.getRecord(id)
	if err != nil {
		return nil, err
	}
	return record.RelationshipTypes(), nil
}

func (store *InMemoryNodeStore) NodeLabels(id int64) ([]int64, error) {
	record, err := store.getRecord(id)
	if err != nil {
		return nil, err
	}
	return record.Labels, nil
}

func (store *InMemoryNodeStore) NodeDegree(
	id int64, direction stats.Direction, relType int64) (int64, error) {
	record, err := store.getRecord(id)
	if err != nil {
		return 0, err
	}
	return record.Degree(direction, relType), nil
}
