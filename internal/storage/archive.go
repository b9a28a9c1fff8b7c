package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/JakeFAU/places-crawler/internal/hash/sha256"
)

// Archived describes a table copied into a blob store.
type Archived struct {
	URI    string
	SHA256 string
	Bytes  int64
}

// Archive copies a file-backed table into blobs under runID. It returns a
// zero Archived without error for tables that are not file backed or when
// blobs is nil.
func Archive(ctx context.Context, blobs BlobStore, table Table, runID string) (Archived, error) {
	fb, ok := table.(FileBacked)
	if !ok || blobs == nil {
		return Archived{}, nil
	}
	f, err := os.Open(fb.Path())
	if err != nil {
		return Archived{}, fmt.Errorf("open table file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	hr := sha256.NewReader(f)
	key := path.Join(runID, filepath.Base(fb.Path()))
	uri, err := blobs.PutObject(ctx, key, fb.ContentType(), hr)
	if err != nil {
		return Archived{}, fmt.Errorf("archive table: %w", err)
	}
	return Archived{URI: uri, SHA256: hr.Sum(), Bytes: hr.Len()}, nil
}
