package core

import (
	"math/rand"

	"github.com/pkg/errors"

	"graphstats/stats"
	"graphstats/storage"
)

// SampleBatchSize is the fixed number of candidate ids drawn per pass.
const SampleBatchSize = 100

// Sampler performs one bounded statistical sampling pass per Run call.
// It is the single writer of the snapshot; the scheduler binding keeps
// at most one Run active at a time.
type Sampler struct {
	store  storage.NodeStore
	data   *stats.Snapshot
	random *rand.Rand
}

func NewSampler(store storage.NodeStore, data *stats.Snapshot, seed int64) *Sampler {
	return &Sampler{
		store:  store,
		data:   data,
		random: rand.New(rand.NewSource(seed)),
	}
}

func isNodeNotFound(err error) bool {
	return errors.Cause(err) == storage.ErrNodeNotFound
}

// Run draws SampleBatchSize candidate ids uniformly from [0, bound) and
// folds each into the snapshot as one observation: a node observation
// for live nodes, a skip for absent or concurrently deleted ones. The
// bound from the start of the pass is then reported as a max-node
// observation and the derived view recomputed. Per-node disappearance
// never fails the pass; storage-level faults do.
func (sampler *Sampler) Run() error {
	highest, err := sampler.store.HighestNodeId()
	if err != nil {
		return errors.Wrap(err, "reading highest node id")
	}

sampling:
	for i := 0; i < SampleBatchSize; i++ {
		if highest <= 0 {
			// Empty id space, nothing can be live.
			sampler.data.RecordSkip()
			continue
		}
		id := sampler.random.Int63n(highest)

		exists, err := sampler.store.NodeExists(id)
		if err != nil {
			return errors.Wrap(err, "checking node existence")
		}
		if !exists {
			sampler.data.RecordSkip()
			continue
		}

		relTypes, err := sampler.store.NodeRelationshipTypes(id)
		if err != nil {
			if isNodeNotFound(err) {
				// Deleted after the existence check; exclude it from the run.
				sampler.data.RecordSkip()
				continue
			}
			return errors.Wrap(err, "reading relationship types")
		}
		labels, err := sampler.store.NodeLabels(id)
		if err != nil {
			if isNodeNotFound(err) {
				sampler.data.RecordSkip()
				continue
			}
			return errors.Wrap(err, "reading labels")
		}

		inDegrees := make(map[int64]int64, len(relTypes))
		outDegrees := make(map[int64]int64, len(relTypes))
		for _, relType := range relTypes {
			inDegree, err := sampler.store.NodeDegree(id, stats.Incoming, relType)
			if err != nil {
				if isNodeNotFound(err) {
					sampler.data.RecordSkip()
					continue sampling
				}
				return errors.Wrap(err, "reading in-degree")
			}
			outDegree, err := sampler.store.NodeDegree(id, stats.Outgoing, relType)
			if err != nil {
				if isNodeNotFound(err) {
					sampler.data.RecordSkip()
					continue sampling
				}
				return errors.Wrap(err, "reading out-degree")
			}
			inDegrees[relType] = inDegree
			outDegrees[relType] = outDegree
		}

		sampler.data.RecordNode(labels, relTypes, inDegrees, outDegrees)
	}

	sampler.data.RecordMaxNodeBound(highest)
	sampler.data.Recompute()
	return nil
}
