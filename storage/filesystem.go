package storage

import (
	"io"
	"os"
)

// FileSystem is the byte-stream filesystem abstraction consumed by the
// file-backed snapshot store. Implementations outside tests are thin
// adapters over the host OS.
type FileSystem interface {
	FileExists(path string) bool
	OpenRead(path string) (io.ReadCloser, error)
	OpenWrite(path string) (io.WriteCloser, error)
	Rename(oldPath, newPath string) error
	Remove(path string) error
}

type OsFileSystem struct{}

func NewOsFileSystem() *OsFileSystem {
	return &OsFileSystem{}
}

func (fs *OsFileSystem) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (fs *OsFileSystem) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (fs *OsFileSystem) OpenWrite(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

func (fs *OsFileSystem) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (fs *OsFileSystem) Remove(path string) error {
	return os.Remove(path)
}
