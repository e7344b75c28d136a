package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"graphstats/stats"
	"graphstats/storage"
)

func fullyLiveStore(numNodes int64) *storage.InMemoryNodeStore {
	store := storage.NewInMemoryNodeStore()
	for id := int64(0); id < numNodes; id++ {
		store.AddNode(id, &storage.NodeRecord{
			Labels:     []int64{1, 2},
			InDegrees:  map[int64]int64{5: 3},
			OutDegrees: map[int64]int64{5: 1},
		})
	}
	return store
}

func TestSamplerPassOverLiveStore(t *testing.T) {
	data := stats.NewSnapshot()
	sampler := NewSampler(fullyLiveStore(10), data, 42)

	err := sampler.Run()
	assert.NoError(t, err)

	// Every id in [0, 10) is live, so the whole batch observes.
	assert.Equal(t, data.ObservedCount()+data.SkippedCount(), int64(SampleBatchSize))
	assert.Equal(t, data.ObservedCount(), int64(SampleBatchSize))
	assert.Equal(t, data.LiveNodesRatio(), 1.0)
	assert.Equal(t, data.MaxAddressableNodes(), int64(10))

	// All nodes carry identical structure, so the estimates are exact.
	assert.Equal(t, data.Degree(1, 5, stats.Incoming), 3.0)
	assert.Equal(t, data.Degree(1, 5, stats.Outgoing), 1.0)
	assert.Equal(t, data.Degree(2, 5, stats.Incoming), 3.0)
	assert.Equal(t, data.LabelDistribution().Len(), 2)
	assert.Equal(t, data.RelationshipTypeDistribution().Probability(5), 1.0)

	// A second pass grows the totals by exactly one batch.
	err = sampler.Run()
	assert.NoError(t, err)
	assert.Equal(t, data.ObservedCount()+data.SkippedCount(), int64(2*SampleBatchSize))
}

func TestSamplerEmptyStore(t *testing.T) {
	data := stats.NewSnapshot()
	sampler := NewSampler(storage.NewInMemoryNodeStore(), data, 42)

	err := sampler.Run()
	assert.NoError(t, err)

	assert.Equal(t, data.SkippedCount(), int64(SampleBatchSize))
	assert.Equal(t, data.ObservedCount(), int64(0))
	assert.Equal(t, data.LiveNodesRatio(), 0.0)
	assert.Equal(t, data.MaxAddressableNodes(), int64(0))
}

func TestSamplerCountsDeadIdsAsSkips(t *testing.T) {
	store := storage.NewInMemoryNodeStore()
	for id := int64(0); id < 20; id += 2 {
		store.AddNode(id, &storage.NodeRecord{
			Labels:     []int64{1},
			InDegrees:  map[int64]int64{5: 1},
			OutDegrees: map[int64]int64{5: 1},
		})
	}
	store.DeleteNode(18) // id 18 stays addressable but dead
	data := stats.NewSnapshot()
	sampler := NewSampler(store, data, 42)

	err := sampler.Run()
	assert.NoError(t, err)

	assert.Equal(t, data.ObservedCount()+data.SkippedCount(), int64(SampleBatchSize))
	assert.True(t, data.SkippedCount() > 0)
	assert.True(t, data.ObservedCount() > 0)
	ratio := data.LiveNodesRatio()
	assert.True(t, ratio > 0.0 && ratio < 1.0)
	assert.Equal(t, data.MaxAddressableNodes(), int64(19))
}

// vanishingStore reports every node as existing but fails the detail
// fetch, the shape of a delete racing the pass between the existence
// check and the reads.
type vanishingStore struct {
	*storage.InMemoryNodeStore
}

func (store *vanishingStore) NodeLabels(id int64) ([]int64, error) {
	return nil, errors.Wrap(storage.ErrNodeNotFound, "node record gone")
}

func TestSamplerTreatsConcurrentDeleteAsSkip(t *testing.T) {
	store := &vanishingStore{InMemoryNodeStore: fullyLiveStore(10)}
	data := stats.NewSnapshot()
	sampler := NewSampler(store, data, 42)

	err := sampler.Run()
	assert.NoError(t, err)

	// The whole batch vanished mid-fetch: all skips, no aborts.
	assert.Equal(t, data.SkippedCount(), int64(SampleBatchSize))
	assert.Equal(t, data.ObservedCount(), int64(0))
	assert.Equal(t, data.LabelDistribution().Len(), 0)
	// The max-bound observation still lands.
	assert.Equal(t, data.MaxAddressableNodes(), int64(10))
}

type faultyStore struct {
	*storage.InMemoryNodeStore
}

func (store *faultyStore) NodeExists(id int64) (bool, error) {
	return false, errors.New("disk on fire")
}

func TestSamplerPropagatesStorageFault(t *testing.T) {
	store := &faultyStore{InMemoryNodeStore: fullyLiveStore(10)}
	sampler := NewSampler(store, stats.NewSnapshot(), 42)

	err := sampler.Run()
	assert.Error(t, err)
}
