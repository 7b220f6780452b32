// Package blobstore persists collections as JSON documents in a blob.Store.
// Each collection lives at <prefix>/<collection>.json and carries its version
// in the blob metadata, so the same layout works on the filesystem, S3 and the
// in-memory driver.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"

	"freshcore/internal/blob"
	"freshcore/pkg/domain"
)

var _ domain.CollectionStore = (*Store)(nil)

const (
	// DefaultPrefix is used when no key prefix is configured.
	DefaultPrefix = "freshcore"

	versionKey  = "version"
	contentType = "application/json"
)

// Store implements domain.CollectionStore on top of a blob backend. Reads and
// version-checked writes are serialized in-process; blob backends offer no
// conditional put, so a single writer process per prefix is assumed.
type Store struct {
	mu     sync.RWMutex
	blobs  blob.Store
	prefix string
}

// NewStore wraps blobs and creates any missing collection as an empty
// document at version 0. The prefix belongs to the store: a collection
// document directly under it that names no known collection fails the open
// with domain.ErrCollectionCorrupt.
func NewStore(ctx context.Context, blobs blob.Store, prefix string) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("blobstore: nil blob store")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{blobs: blobs, prefix: prefix}
	infos, err := blobs.List(ctx, prefix+"/")
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("%w: list %s: %v", domain.ErrStoreIO, prefix, err)}
	}
	known := make(map[string]domain.Collection, len(domain.Collections))
	for _, name := range domain.Collections {
		known[s.key(name)] = name
	}
	present := make(map[domain.Collection]bool, len(infos))
	for _, info := range infos {
		if name, ok := known[info.Key]; ok {
			present[name] = true
			continue
		}
		rest := strings.TrimPrefix(info.Key, prefix+"/")
		if strings.Contains(rest, "/") || path.Ext(rest) != ".json" {
			continue
		}
		return nil, &domain.StoreError{
			Op:         "open",
			Collection: domain.Collection(strings.TrimSuffix(rest, ".json")),
			Err:        fmt.Errorf("%w: unknown collection document %s", domain.ErrCollectionCorrupt, info.Key),
		}
	}
	for _, name := range domain.Collections {
		if present[name] {
			continue
		}
		if err := s.put(ctx, name, nil, 0); err != nil {
			return nil, &domain.StoreError{Op: "open", Collection: name, Err: err}
		}
	}
	return s, nil
}

// Driver reports the underlying blob driver.
func (s *Store) Driver() blob.Driver { return s.blobs.Driver() }

// Read fetches and decodes the collection document.
func (s *Store) Read(ctx context.Context, name domain.Collection) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, rc, err := s.blobs.Get(ctx, s.key(name))
	if err != nil {
		return domain.Snapshot{}, &domain.StoreError{Op: "read", Collection: name, Err: s.classify(err)}
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return domain.Snapshot{}, &domain.StoreError{Op: "read", Collection: name, Err: fmt.Errorf("%w: %v", domain.ErrStoreIO, err)}
	}
	version, err := parseVersion(info.Metadata)
	if err != nil {
		return domain.Snapshot{}, &domain.StoreError{Op: "read", Collection: name, Err: err}
	}
	records, err := domain.SplitPayload(payload)
	if err != nil {
		return domain.Snapshot{}, &domain.StoreError{Op: "read", Collection: name, Err: err}
	}
	return domain.Snapshot{Records: records, Version: version}, nil
}

// Write replaces the collection document when the stored version matches.
func (s *Store) Write(ctx context.Context, name domain.Collection, records []json.RawMessage, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := s.blobs.Head(ctx, s.key(name))
	if err != nil {
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: s.classify(err)}
	}
	current, err := parseVersion(info.Metadata)
	if err != nil {
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: err}
	}
	if current != expectedVersion {
		return current, &domain.StoreError{
			Op:         "write",
			Collection: name,
			Err:        fmt.Errorf("%w: expected version %d, stored %d", domain.ErrVersionConflict, expectedVersion, current),
		}
	}
	next := current + 1
	if err := s.put(ctx, name, records, next); err != nil {
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: err}
	}
	return next, nil
}

func (s *Store) put(ctx context.Context, name domain.Collection, records []json.RawMessage, version int64) error {
	payload, err := domain.JoinPayload(records)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrStoreIO, err)
	}
	opts := blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{versionKey: strconv.FormatInt(version, 10)},
	}
	if _, err := s.blobs.Put(ctx, s.key(name), bytes.NewReader(payload), opts); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}
	return nil
}

func (s *Store) key(name domain.Collection) string {
	return path.Join(s.prefix, string(name)+".json")
}

func (s *Store) classify(err error) error {
	if errors.Is(err, blob.ErrNotFound) {
		return domain.ErrCollectionNotFound
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
}

func parseVersion(md map[string]string) (int64, error) {
	raw, ok := md[versionKey]
	if !ok {
		return 0, fmt.Errorf("%w: missing version metadata", domain.ErrCollectionCorrupt)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid version %q", domain.ErrCollectionCorrupt, raw)
	}
	return v, nil
}
