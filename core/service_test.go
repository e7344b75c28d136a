package core

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"graphstats/stats"
	"graphstats/storage"
)

func TestServiceLifecycle(t *testing.T) {
	scheduler := NewManualScheduler()
	service := NewHeuristicsService(fullyLiveStore(10), scheduler)

	err := service.Start()
	assert.NoError(t, err)
	assert.True(t, scheduler.IsScheduled(GroupSampling))

	err = service.Start()
	assert.Error(t, err)

	// A scheduler tick performs one full pass.
	assert.True(t, scheduler.Tick(GroupSampling))
	assert.NoError(t, service.LastPassError())
	snapshot := service.Snapshot()
	assert.Equal(t,
		snapshot.ObservedCount()+snapshot.SkippedCount(),
		int64(SampleBatchSize))
	assert.Equal(t, service.LiveNodesRatio(), 1.0)
	assert.Equal(t, service.MaxAddressableNodes(), int64(10))
	assert.Equal(t, service.Degree(1, 5, stats.Incoming), 3.0)
	assert.Equal(t, service.LabelDistribution().Len(), 2)
	assert.Equal(t, service.RelationshipTypeDistribution().Len(), 1)

	err = service.Stop()
	assert.NoError(t, err)
	assert.False(t, scheduler.IsScheduled(GroupSampling))

	err = service.Stop()
	assert.Error(t, err)
}

type failingScheduler struct {
	failSchedule bool
	failCancel   bool
}

func (scheduler *failingScheduler) ScheduleRecurring(
	group Group, task func(), interval time.Duration) error {
	if scheduler.failSchedule {
		return errors.New("registration refused")
	}
	return nil
}

func (scheduler *failingScheduler) CancelRecurring(group Group) error {
	if scheduler.failCancel {
		return errors.New("deregistration refused")
	}
	return nil
}

func TestServiceStartPropagatesSchedulerFailure(t *testing.T) {
	service := NewHeuristicsService(
		fullyLiveStore(10), &failingScheduler{failSchedule: true})

	err := service.Start()
	assert.Error(t, err)

	// The failed start leaves the service stopped, so stopping errors
	// and a retried start reaches the scheduler again.
	err = service.Stop()
	assert.Error(t, err)
	err = service.Start()
	assert.Error(t, err)
}

func TestServiceStopPropagatesSchedulerFailure(t *testing.T) {
	service := NewHeuristicsService(
		fullyLiveStore(10), &failingScheduler{failCancel: true})

	err := service.Start()
	assert.NoError(t, err)
	err = service.Stop()
	assert.Error(t, err)

	// The failed stop leaves the service started.
	err = service.Start()
	assert.Error(t, err)
}

func TestServiceSaveLoadRoundTrip(t *testing.T) {
	store := fullyLiveStore(10)
	snapshots := storage.NewInMemorySnapshotStore()

	service := NewHeuristicsService(store, NewManualScheduler()).
		SetSnapshotStore(snapshots)
	err := service.RunSamplingPass()
	assert.NoError(t, err)
	err = service.Save()
	assert.NoError(t, err)

	restored := Load(snapshots, store, NewManualScheduler())
	assert.True(t, service.Equals(restored))
	assert.Empty(t, cmp.Diff(
		service.LabelDistribution(), restored.LabelDistribution()))
	assert.Empty(t, cmp.Diff(
		service.RelationshipTypeDistribution(),
		restored.RelationshipTypeDistribution()))
	assert.Equal(t,
		restored.Degree(1, 5, stats.Outgoing),
		service.Degree(1, 5, stats.Outgoing))
	assert.Equal(t, restored.LiveNodesRatio(), service.LiveNodesRatio())
	assert.Equal(t, restored.MaxAddressableNodes(), service.MaxAddressableNodes())

	// The restored snapshot keeps accumulating, not restarting.
	err = restored.RunSamplingPass()
	assert.NoError(t, err)
	assert.Equal(t,
		restored.Snapshot().ObservedCount()+restored.Snapshot().SkippedCount(),
		int64(2*SampleBatchSize))
}

func TestServiceLoadMissingSnapshotStartsFresh(t *testing.T) {
	service := Load(
		storage.NewInMemorySnapshotStore(),
		fullyLiveStore(10),
		NewManualScheduler())

	assert.True(t, service.Snapshot().Equal(stats.NewSnapshot()))
}

func TestServiceLoadCorruptSnapshotStartsFresh(t *testing.T) {
	corrupt := [][]byte{
		{},
		{0xde, 0xad, 0xbe, 0xef},
		[]byte("definitely not a statistics snapshot"),
	}
	// A truncated copy of a valid blob decodes no better.
	valid := stats.SnapshotToBytes(stats.NewSnapshot())
	corrupt = append(corrupt, valid[:len(valid)-3])

	for _, buf := range corrupt {
		snapshots := storage.NewInMemorySnapshotStore()
		err := snapshots.PutSnapshot(buf)
		assert.NoError(t, err)

		service := Load(snapshots, fullyLiveStore(10), NewManualScheduler())
		assert.True(t, service.Snapshot().Equal(stats.NewSnapshot()))
		assert.Equal(t, service.LiveNodesRatio(), 0.0)
		assert.Equal(t, service.MaxAddressableNodes(), int64(0))
		assert.Equal(t, service.LabelDistribution().Len(), 0)
	}
}

type failingSnapshotStore struct{}

func (store *failingSnapshotStore) GetSnapshot() ([]byte, error) {
	return nil, errors.New("read refused")
}

func (store *failingSnapshotStore) PutSnapshot(buf []byte) error {
	return errors.New("write refused")
}

func TestServiceSavePropagatesWriteFailure(t *testing.T) {
	service := NewHeuristicsService(fullyLiveStore(10), NewManualScheduler()).
		SetSnapshotStore(&failingSnapshotStore{})

	err := service.Save()
	assert.Error(t, err)
}

func TestServiceSaveWithoutStoreFails(t *testing.T) {
	service := NewHeuristicsService(fullyLiveStore(10), NewManualScheduler())
	err := service.Save()
	assert.Error(t, err)
}

func TestServiceLoadFromFailingStoreStartsFresh(t *testing.T) {
	service := Load(
		&failingSnapshotStore{}, fullyLiveStore(10), NewManualScheduler())
	assert.True(t, service.Snapshot().Equal(stats.NewSnapshot()))
}
