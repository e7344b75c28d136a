package core

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"graphstats/stats"
	"graphstats/storage"
)

const (
	Stopped int32 = iota
	Started
)

const DefaultSamplingInterval = 30 * time.Second

// HeuristicsService owns the statistics snapshot: it registers the
// sampling pass with the scheduler on Start, detaches it on Stop, and
// drives load/save around the snapshot's lifetime. The read accessors
// may be called from any number of goroutines at any time, including
// mid-pass.
type HeuristicsService struct {
	store     storage.NodeStore
	scheduler JobScheduler
	snapshots storage.SnapshotStore
	data      *stats.Snapshot
	sampler   *Sampler
	interval  time.Duration

	state       *atomic.Int32
	lastPassErr *atomic.Error
}

func newService(
	data *stats.Snapshot,
	store storage.NodeStore,
	scheduler JobScheduler) *HeuristicsService {
	return &HeuristicsService{
		store:       store,
		scheduler:   scheduler,
		snapshots:   nil,
		data:        data,
		sampler:     NewSampler(store, data, time.Now().UnixNano()),
		interval:    DefaultSamplingInterval,
		state:       atomic.NewInt32(Stopped),
		lastPassErr: atomic.NewError(nil),
	}
}

// NewHeuristicsService starts from an empty snapshot.
func NewHeuristicsService(
	store storage.NodeStore, scheduler JobScheduler) *HeuristicsService {
	return newService(stats.NewSnapshot(), store, scheduler)
}

// Load reconstructs the snapshot from the given store. Any failure —
// missing blob, truncated or malformed content, unrecognized version —
// yields a service with a fresh, empty snapshot; loading is never fatal
// to startup.
func Load(
	snapshots storage.SnapshotStore,
	store storage.NodeStore,
	scheduler JobScheduler) *HeuristicsService {

	data := stats.NewSnapshot()
	if buf, err := snapshots.GetSnapshot(); err == nil {
		if decoded, err := stats.BytesToSnapshot(buf); err == nil {
			data = decoded
		}
		// A decode failure means the blob is somehow corrupt;
		// start over with fresh statistics.
	}
	service := newService(data, store, scheduler)
	service.snapshots = snapshots
	return service
}

func (service *HeuristicsService) SetSamplingInterval(
	interval time.Duration) *HeuristicsService {
	service.interval = interval
	return service
}

func (service *HeuristicsService) SetSnapshotStore(
	snapshots storage.SnapshotStore) *HeuristicsService {
	service.snapshots = snapshots
	return service
}

// Start registers the recurring sampling pass. A registration failure
// propagates and leaves the service stopped.
func (service *HeuristicsService) Start() error {
	if !service.state.CAS(Stopped, Started) {
		return errors.New("service already started")
	}
	err := service.scheduler.ScheduleRecurring(
		GroupSampling, service.runPass, service.interval)
	if err != nil {
		service.state.Store(Stopped)
		return errors.Wrap(err, "scheduling sampling")
	}
	return nil
}

// Stop deregisters the sampling pass. A pass already in progress is not
// interrupted. A deregistration failure propagates and leaves the
// service started.
func (service *HeuristicsService) Stop() error {
	if !service.state.CAS(Started, Stopped) {
		return errors.New("service not started")
	}
	err := service.scheduler.CancelRecurring(GroupSampling)
	if err != nil {
		service.state.Store(Started)
		return errors.Wrap(err, "cancelling sampling")
	}
	return nil
}

func (service *HeuristicsService) runPass() {
	service.lastPassErr.Store(service.sampler.Run())
}

// RunSamplingPass performs one pass synchronously. Callers must not
// overlap it with a started scheduler.
func (service *HeuristicsService) RunSamplingPass() error {
	return service.sampler.Run()
}

// LastPassError reports the outcome of the most recent scheduled pass;
// nil after a clean pass.
func (service *HeuristicsService) LastPassError() error {
	return service.lastPassErr.Load()
}

// Save serializes the snapshot to the configured store. Write failures
// propagate: the shutdown path needs to know persisted state may be
// stale or missing.
func (service *HeuristicsService) Save() error {
	if service.snapshots == nil {
		return errors.New("no snapshot store configured")
	}
	err := service.snapshots.PutSnapshot(stats.SnapshotToBytes(service.data))
	return errors.Wrap(err, "saving statistics snapshot")
}

func (service *HeuristicsService) LabelDistribution() *stats.LabelledDistribution {
	return service.data.LabelDistribution()
}

func (service *HeuristicsService) RelationshipTypeDistribution() *stats.LabelledDistribution {
	return service.data.RelationshipTypeDistribution()
}

func (service *HeuristicsService) Degree(
	label, relType int64, direction stats.Direction) float64 {
	return service.data.Degree(label, relType, direction)
}

func (service *HeuristicsService) LiveNodesRatio() float64 {
	return service.data.LiveNodesRatio()
}

func (service *HeuristicsService) MaxAddressableNodes() int64 {
	return service.data.MaxAddressableNodes()
}

// Snapshot exposes the underlying accumulator, primarily for equality
// checks in tests.
func (service *HeuristicsService) Snapshot() *stats.Snapshot {
	return service.data
}

func (service *HeuristicsService) Equals(other *HeuristicsService) bool {
	return service.data.Equal(other.data)
}
