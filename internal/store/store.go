package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/identity"
	"github.com/JakeFAU/places-crawler/internal/place"
	"github.com/JakeFAU/places-crawler/internal/record"
	"github.com/JakeFAU/places-crawler/internal/storage"
)

// Outcome is the result of a write that did not fail.
type Outcome int

// Write outcomes. Rejections are not errors.
const (
	Accepted Outcome = iota
	Duplicate
	Incomplete
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Incomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("store: closed")

// Opener opens the backing table for a sanitized name.
type Opener func(ctx context.Context, name string) (storage.Table, error)

// Store serializes writes to one table. The identity index holds a key iff
// a row carrying that identity is durably persisted.
type Store struct {
	mu      sync.Mutex
	table   storage.Table
	header  []string
	columns map[string]struct{}
	index   map[string]struct{}
	rows    int
	closed  bool
	logger  *zap.Logger
}

// Open derives the table name from query and loads the store.
func Open(ctx context.Context, query string, open Opener, logger *zap.Logger) (*Store, error) {
	name := Sanitize(query)
	if name == "" {
		return nil, fmt.Errorf("query %q sanitizes to an empty table name", query)
	}
	table, err := open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open table %q: %w", name, err)
	}
	s, err := New(ctx, table, logger)
	if err != nil {
		_ = table.Close()
		return nil, err
	}
	return s, nil
}

// New loads the header of table and replays its rows to rebuild the
// identity index and row count.
func New(ctx context.Context, table storage.Table, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	header, err := table.Header(ctx)
	if err != nil {
		return nil, fmt.Errorf("load header: %w", err)
	}
	s := &Store{
		table:   table,
		header:  slices.Clone(header),
		columns: make(map[string]struct{}, len(header)),
		index:   map[string]struct{}{},
		logger:  logger.Named("store"),
	}
	for _, c := range header {
		s.columns[c] = struct{}{}
	}

	nameCol := slices.Index(header, place.FieldName)
	addrCol := slices.Index(header, place.FieldAddress)
	indexed := nameCol >= 0 && addrCol >= 0
	if len(header) > 0 && !indexed {
		s.logger.Warn("identity columns missing from header; duplicates from earlier runs cannot be detected",
			zap.String("table", table.Location()),
			zap.Strings("header", header),
		)
	}

	err = table.Scan(ctx, func(row []string) error {
		s.rows++
		if !indexed {
			return nil
		}
		name, addr := cell(row, nameCol), cell(row, addrCol)
		if identity.Complete(name, addr) {
			s.index[identity.Key(name, addr)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay rows: %w", err)
	}

	s.logger.Info("store loaded",
		zap.String("table", table.Location()),
		zap.Int("columns", len(s.header)),
		zap.Int("rows", s.rows),
		zap.Int("identities", len(s.index)),
	)
	return s, nil
}

// WriteRow persists rec unless its identity is incomplete or already
// stored. Header, index and row count change only after the backend has
// durably accepted the row.
func (s *Store) WriteRow(ctx context.Context, rec *record.Record) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	name, _ := rec.Get(place.FieldName)
	addr, _ := rec.Get(place.FieldAddress)
	if !identity.Complete(name, addr) {
		return Incomplete, nil
	}
	key := identity.Key(name, addr)
	if _, dup := s.index[key]; dup {
		return Duplicate, nil
	}

	header := s.header
	var added []string
	for _, c := range rec.Columns() {
		if _, ok := s.columns[c]; !ok && !slices.Contains(added, c) {
			added = append(added, c)
		}
	}
	if len(added) > 0 {
		header = append(slices.Clone(s.header), added...)
	}

	row := make([]string, len(header))
	for i, c := range header {
		row[i], _ = rec.Get(c)
	}
	if err := s.table.Append(ctx, header, row, len(added) > 0); err != nil {
		return 0, fmt.Errorf("persist row: %w", err)
	}

	if len(added) > 0 {
		s.header = header
		for _, c := range added {
			s.columns[c] = struct{}{}
		}
		s.logger.Debug("header grew", zap.Strings("added", added), zap.Int("columns", len(header)))
	}
	s.index[key] = struct{}{}
	s.rows++
	return Accepted, nil
}

// RowCount returns the number of persisted data rows.
func (s *Store) RowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Header returns a copy of the current header schema.
func (s *Store) Header() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.header)
}

// Contains reports whether an identity is already stored.
func (s *Store) Contains(name, address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[identity.Key(name, address)]
	return ok
}

// Location describes the backing table.
func (s *Store) Location() string {
	return s.table.Location()
}

// Table exposes the backing table, for archiving.
func (s *Store) Table() storage.Table {
	return s.table
}

// Close closes the backing table. Further writes fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.table.Close(); err != nil {
		return fmt.Errorf("close table: %w", err)
	}
	return nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
