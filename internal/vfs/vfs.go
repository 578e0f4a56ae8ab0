// Package vfs provides the minimal filesystem abstraction the write-ahead
// log's I/O worker writes through.
//
// The WAL's on-disk driver is deliberately narrow: create the log file once
// at store-open time, append sealed segment buffers to it, and fsync. Reading
// the log back is out of scope (crash recovery/replay is a non-goal), so
// this package exposes no read path.
package vfs

import "os"

// WritableFile is an append-and-sync destination for a single log file.
type WritableFile interface {
	// Append writes data to the end of the file. It does not imply
	// durability; call Sync for that.
	Append(data []byte) error

	// Sync flushes the file's in-kernel buffers to stable storage.
	Sync() error

	// Close releases the underlying file descriptor.
	Close() error
}

// FS creates and opens the single log file a store needs.
//
// This is the stand-in for the file system driver spec.md names as an
// external collaborator ("provides: append, sync, create"); OSFileSystem
// below is the default, real implementation.
type FS interface {
	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string, perm os.FileMode) error

	// Create creates (or truncates) a file for appending.
	Create(name string) (WritableFile, error)
}

// OSFileSystem is the default FS backed by the local operating system.
type OSFileSystem struct{}

var _ FS = OSFileSystem{}

// MkdirAll implements FS.
func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Create implements FS.
func (OSFileSystem) Create(name string) (WritableFile, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &osFile{f: f}, nil
}

type osFile struct {
	f *os.File
}

func (o *osFile) Append(data []byte) error {
	_, err := o.f.Write(data)
	return err
}

func (o *osFile) Sync() error {
	return o.f.Sync()
}

func (o *osFile) Close() error {
	return o.f.Close()
}
