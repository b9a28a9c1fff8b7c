package memory

import (
	"context"
	"sync"
)

// Table is an in-memory table. Rows are copied on the way in and out.
type Table struct {
	mu     sync.RWMutex
	name   string
	header []string
	rows   [][]string
}

// NewTable creates an empty table.
func NewTable(name string) *Table {
	return &Table{name: name}
}

// NewTableWithRows seeds a table, mainly for resume tests.
func NewTableWithRows(name string, header []string, rows ...[]string) *Table {
	t := &Table{name: name, header: clone(header)}
	for _, r := range rows {
		t.rows = append(t.rows, clone(r))
	}
	return t
}

// Header returns a copy of the header.
func (t *Table) Header(_ context.Context) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return clone(t.header), nil
}

// Scan visits a snapshot of the rows.
func (t *Table) Scan(ctx context.Context, visit func(row []string) error) error {
	t.mu.RLock()
	rows := make([][]string, len(t.rows))
	for i, r := range t.rows {
		rows[i] = clone(r)
	}
	t.mu.RUnlock()
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visit(r); err != nil {
			return err
		}
	}
	return nil
}

// Append stores row and adopts header.
func (t *Table) Append(_ context.Context, header []string, row []string, _ bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.header = clone(header)
	t.rows = append(t.rows, clone(row))
	return nil
}

// Location returns a pseudo URI.
func (t *Table) Location() string { return "memory://" + t.name }

// Close is a no-op.
func (t *Table) Close() error { return nil }

// Rows returns a copy of every stored row.
func (t *Table) Rows() [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = clone(r)
	}
	return out
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
