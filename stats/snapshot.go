package stats

import (
	"go.uber.org/atomic"
)

// Snapshot is the statistics accumulator. Raw counters are mutated by a
// single sampling pass at a time (the scheduler binding enforces this),
// so they carry no lock. Readers never touch the raw counters: they
// dereference the derived view, an immutable value swapped in whole by
// Recompute. A reader therefore always observes a view that is fully
// pre-recompute or fully post-recompute, never a mixture.
type Snapshot struct {
	observed      *atomic.Int64
	skipped       *atomic.Int64
	labelCounts   map[int64]int64
	relTypeCounts map[int64]int64
	degrees       map[DegreeKey]*Welford
	maxNodeId     *atomic.Int64

	view *atomic.Value // holds *DerivedView
}

// DerivedView is the read-optimized product of one Recompute.
type DerivedView struct {
	Labels    *LabelledDistribution
	RelTypes  *LabelledDistribution
	Degrees   map[DegreeKey]float64
	LiveRatio float64
	MaxNodes  int64
}

func emptyView() *DerivedView {
	return &DerivedView{
		Labels:    NewLabelledDistribution(nil),
		RelTypes:  NewLabelledDistribution(nil),
		Degrees:   make(map[DegreeKey]float64),
		LiveRatio: 0,
		MaxNodes:  0,
	}
}

func NewSnapshot() *Snapshot {
	snapshot := &Snapshot{
		observed:      atomic.NewInt64(0),
		skipped:       atomic.NewInt64(0),
		labelCounts:   make(map[int64]int64),
		relTypeCounts: make(map[int64]int64),
		degrees:       make(map[DegreeKey]*Welford),
		maxNodeId:     atomic.NewInt64(0),
		view:          &atomic.Value{},
	}
	snapshot.view.Store(emptyView())
	return snapshot
}

// RecordNode folds one live-node observation into the raw counters:
// one count per label, one per relationship type, and one degree sample
// per (label, relType, direction) combination present on the node.
func (snapshot *Snapshot) RecordNode(
	labels []int64,
	relTypes []int64,
	inDegrees map[int64]int64,
	outDegrees map[int64]int64) {

	for _, label := range labels {
		snapshot.labelCounts[label] += 1
	}
	for _, relType := range relTypes {
		snapshot.relTypeCounts[relType] += 1
	}

	for _, label := range labels {
		for _, relType := range relTypes {
			snapshot.updateDegree(label, relType, Incoming, inDegrees[relType])
			snapshot.updateDegree(label, relType, Outgoing, outDegrees[relType])
		}
	}

	snapshot.observed.Inc()
}

func (snapshot *Snapshot) updateDegree(
	label, relType int64, direction Direction, degree int64) {
	key := DegreeKey{Label: label, RelType: relType, Direction: direction}
	accumulator, ok := snapshot.degrees[key]
	if !ok {
		accumulator = NewWelford()
		snapshot.degrees[key] = accumulator
	}
	accumulator.Update(float64(degree))
}

// RecordSkip counts a candidate id that resolved to no live node.
func (snapshot *Snapshot) RecordSkip() {
	snapshot.skipped.Inc()
}

// RecordMaxNodeBound folds a reported node-id bound via monotonic max.
// A later, smaller bound never decreases the estimate.
func (snapshot *Snapshot) RecordMaxNodeBound(bound int64) {
	for {
		current := snapshot.maxNodeId.Load()
		if bound <= current {
			return
		}
		if snapshot.maxNodeId.CAS(current, bound) {
			return
		}
	}
}

// Recompute derives a fresh view from the raw counters and swaps it in
// atomically. Called once per sampling pass, after the batch.
func (snapshot *Snapshot) Recompute() {
	degrees := make(map[DegreeKey]float64, len(snapshot.degrees))
	for key, accumulator := range snapshot.degrees {
		degrees[key] = accumulator.GetMean()
	}

	observed := snapshot.observed.Load()
	skipped := snapshot.skipped.Load()
	liveRatio := 0.0
	if observed+skipped > 0 {
		liveRatio = float64(observed) / float64(observed+skipped)
	}

	snapshot.view.Store(&DerivedView{
		Labels:    NewLabelledDistribution(snapshot.labelCounts),
		RelTypes:  NewLabelledDistribution(snapshot.relTypeCounts),
		Degrees:   degrees,
		LiveRatio: liveRatio,
		MaxNodes:  snapshot.maxNodeId.Load(),
	})
}

func (snapshot *Snapshot) currentView() *DerivedView {
	return snapshot.view.Load().(*DerivedView)
}

// View returns the current derived view as one consistent unit.
func (snapshot *Snapshot) View() *DerivedView {
	return snapshot.currentView()
}

func (snapshot *Snapshot) LabelDistribution() *LabelledDistribution {
	return snapshot.currentView().Labels
}

func (snapshot *Snapshot) RelationshipTypeDistribution() *LabelledDistribution {
	return snapshot.currentView().RelTypes
}

// Degree returns the running mean degree for the triple, 0 if the triple
// was never observed.
func (snapshot *Snapshot) Degree(label, relType int64, direction Direction) float64 {
	key := DegreeKey{Label: label, RelType: relType, Direction: direction}
	return snapshot.currentView().Degrees[key]
}

// LiveNodesRatio is the fraction of sampled candidates that resolved to
// live nodes; 0 before any samples have been taken.
func (snapshot *Snapshot) LiveNodesRatio() float64 {
	return snapshot.currentView().LiveRatio
}

// MaxAddressableNodes is the highest node-id bound any pass has reported.
func (snapshot *Snapshot) MaxAddressableNodes() int64 {
	return snapshot.currentView().MaxNodes
}

func (snapshot *Snapshot) ObservedCount() int64 {
	return snapshot.observed.Load()
}

func (snapshot *Snapshot) SkippedCount() int64 {
	return snapshot.skipped.Load()
}

// Equal compares raw observable state, used for test verification.
func (snapshot *Snapshot) Equal(other *Snapshot) bool {
	if snapshot.observed.Load() != other.observed.Load() ||
		snapshot.skipped.Load() != other.skipped.Load() ||
		snapshot.maxNodeId.Load() != other.maxNodeId.Load() {
		return false
	}
	if len(snapshot.labelCounts) != len(other.labelCounts) ||
		len(snapshot.relTypeCounts) != len(other.relTypeCounts) ||
		len(snapshot.degrees) != len(other.degrees) {
		return false
	}
	for label, count := range snapshot.labelCounts {
		if other.labelCounts[label] != count {
			return false
		}
	}
	for relType, count := range snapshot.relTypeCounts {
		if other.relTypeCounts[relType] != count {
			return false
		}
	}
	for key, accumulator := range snapshot.degrees {
		otherAccumulator, ok := other.degrees[key]
		if !ok || !accumulator.Equal(otherAccumulator) {
			return false
		}
	}
	return true
}
