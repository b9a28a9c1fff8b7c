package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/places-crawler/internal/progress"
)

// JournalSink appends events as JSON lines to a file that outlives the
// run. Each batch is synced before Consume returns.
type JournalSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

// NewJournalSink opens path for appending, creating it and its directory
// when missing.
func NewJournalSink(path string) (*JournalSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JournalSink{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

// Path returns the journal file location.
func (s *JournalSink) Path() string { return s.path }

// Consume appends batch to the journal.
func (s *JournalSink) Consume(ctx context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("journal %s is closed", s.path)
	}
	for _, evt := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.enc.Encode(evt); err != nil {
			return fmt.Errorf("write journal: %w", err)
		}
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Close closes the journal file. Later calls are no-ops.
func (s *JournalSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
