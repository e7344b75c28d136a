package storage

import (
	"io/ioutil"

	"github.com/pkg/errors"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists one encoded statistics snapshot per deployment.
// Get and Put only ever run during start/stop transitions, never
// concurrently with a sampling pass or with each other.
type SnapshotStore interface {
	GetSnapshot() ([]byte, error)
	PutSnapshot([]byte) error
}

type InMemorySnapshotStore struct {
	snapshot []byte
}

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snapshot: nil}
}

func (store *InMemorySnapshotStore) GetSnapshot() ([]byte, error) {
	if store.snapshot == nil {
		return nil, ErrSnapshotNotFound
	}
	return store.snapshot, nil
}

func (store *InMemorySnapshotStore) PutSnapshot(buf []byte) error {
	store.snapshot = buf
	return nil
}

// FileSnapshotStore keeps the snapshot in a single file. Writes go to a
// temporary sibling first and replace the target with a rename, so a
// crashed save never leaves a half-written file that a later load would
// take for a valid snapshot.
type FileSnapshotStore struct {
	fs   FileSystem
	path string
}

func NewFileSnapshotStore(fs FileSystem, path string) *FileSnapshotStore {
	return &FileSnapshotStore{fs: fs, path: path}
}

func (store *FileSnapshotStore) tmpPath() string {
	return store.path + ".tmp"
}

func (store *FileSnapshotStore) GetSnapshot() ([]byte, error) {
	if !store.fs.FileExists(store.path) {
		return nil, ErrSnapshotNotFound
	}
	reader, err := store.fs.OpenRead(store.path)
	if err != nil {
		return nil, errors.Wrap(err, "opening snapshot file")
	}
	defer reader.Close()

	buf, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "reading snapshot file")
	}
	return buf, nil
}

func (store *FileSnapshotStore) PutSnapshot(buf []byte) error {
	writer, err := store.fs.OpenWrite(store.tmpPath())
	if err != nil {
		return errors.Wrap(err, "creating snapshot tmp file")
	}
	if _, err := writer.Write(buf); err != nil {
		writer.Close()
		store.fs.Remove(store.tmpPath())
		return errors.Wrap(err, "writing snapshot tmp file")
	}
	if err := writer.Close(); err != nil {
		store.fs.Remove(store.tmpPath())
		return errors.Wrap(err, "closing snapshot tmp file")
	}
	if err := store.fs.Rename(store.tmpPath(), store.path); err != nil {
		store.fs.Remove(store.tmpPath())
		return errors.Wrap(err, "replacing snapshot file")
	}
	return nil
}
