// Package memory keeps tables and archived blobs in process memory, for
// dry runs and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

type blob struct {
	data        []byte
	contentType string
}

// BlobStore keeps archived tables in a map keyed by object path.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewBlobStore returns an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

// PutObject reads r fully and stores it under name.
func (s *BlobStore) PutObject(_ context.Context, name string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	s.mu.Lock()
	s.blobs[name] = blob{data: data, contentType: contentType}
	s.mu.Unlock()
	return "memory://" + name, nil
}

// Object returns a copy of the stored bytes and the content type.
func (s *BlobStore) Object(name string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[name]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(b.data), b.contentType, true
}
