// Package core holds the backend-neutral blob contract shared by the fs, s3
// and memory drivers.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver names a blob backend.
type Driver string

const (
	// DriverFilesystem stores blobs under a local directory. It is the default.
	DriverFilesystem Driver = "fs"
	// DriverS3 talks to S3 or any S3-compatible endpoint such as MinIO.
	DriverS3 Driver = "s3"
	// DriverMemory keeps blobs in process memory.
	DriverMemory Driver = "memory"
)

// Valid reports whether d names a known driver. The empty driver is valid and
// selects the default.
func (d Driver) Valid() bool {
	switch d {
	case "", DriverFilesystem, DriverS3, DriverMemory:
		return true
	}
	return false
}

// PutOptions carries the optional attributes of a write.
type PutOptions struct {
	ContentType string
	// Metadata is a small flat map stored alongside the object. Collection
	// documents keep their version here.
	Metadata map[string]string
}

// Info describes one stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the object storage contract. Put replaces whatever is stored at
// key, content and metadata alike.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// List returns the objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ErrNotFound is wrapped by every driver when a key does not exist.
var ErrNotFound = errors.New("blob not found")
