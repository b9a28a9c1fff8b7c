// Package storage defines the persisted table and blob store abstractions.
// This lets the record store stay independent of a concrete backend
// (a spreadsheet or CSV file on disk, PostgreSQL, or memory).
package storage

import (
	"context"
	"io"
)

// Table is one persisted table: a header row followed by data rows of
// string cells in header order.
type Table interface {
	// Header returns the persisted header, or nil for an empty table.
	Header(ctx context.Context) ([]string, error)
	// Scan visits every persisted data row in order.
	Scan(ctx context.Context, visit func(row []string) error) error
	// Append persists row under header. When grew is true the header has
	// gained columns and must be rewritten first; existing columns keep
	// their positions. The row is durable once Append returns nil.
	Append(ctx context.Context, header []string, row []string, grew bool) error
	// Location describes where the table lives.
	Location() string
	// Close releases backend resources.
	Close() error
}

// FileBacked is implemented by tables stored as a single local file.
type FileBacked interface {
	Path() string
	ContentType() string
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
