// Package csvfile persists a table as a CSV file on the local filesystem.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is a CSV-backed table. Appends with an unchanged header are
// fsync'd in place; header growth rewrites the file through a temporary
// file and an atomic rename.
type Table struct {
	path string
}

// Open prepares the table at path, creating parent directories and an
// empty file when missing.
func Open(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create table directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open table file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close table file: %w", err)
	}
	return &Table{path: path}, nil
}

// Header returns the first record of the file.
func (t *Table) Header(ctx context.Context) ([]string, error) {
	var header []string
	err := t.read(ctx, func(i int, rec []string) error {
		if i == 0 {
			header = rec
			return errStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

// Scan visits every record after the header.
func (t *Table) Scan(ctx context.Context, visit func(row []string) error) error {
	return t.read(ctx, func(i int, rec []string) error {
		if i == 0 {
			return nil
		}
		return visit(rec)
	})
}

// Append writes row, rewriting the header first when it grew.
func (t *Table) Append(_ context.Context, header []string, row []string, grew bool) error {
	if grew {
		return t.rewrite(header, row)
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open for append: %w", err)
	}
	if err := writeRecords(f, row); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close table file: %w", err)
	}
	return nil
}

// Location returns the file path.
func (t *Table) Location() string { return t.path }

// Path returns the file path.
func (t *Table) Path() string { return t.path }

// ContentType returns the MIME type of the file.
func (t *Table) ContentType() string { return "text/csv" }

// Close is a no-op; every append opens and closes its own handle.
func (t *Table) Close() error { return nil }

var errStop = errors.New("stop")

func (t *Table) read(ctx context.Context, fn func(i int, rec []string) error) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("open table file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read table row %d: %w", i+1, err)
		}
		if err := fn(i, rec); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
}

// rewrite replaces the header in place, keeps every data row as stored and
// appends row, all through a temporary file.
func (t *Table) rewrite(header, row []string) error {
	var rows [][]string
	if err := t.Scan(context.Background(), func(r []string) error {
		rows = append(rows, r)
		return nil
	}); err != nil {
		return err
	}
	rows = append(rows, row)

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := writeRecords(tmp, append([][]string{header}, rows...)...); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		cleanup()
		return fmt.Errorf("replace table file: %w", err)
	}
	return syncDir(dir)
}

func writeRecords(f *os.File, records ...[]string) error {
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync table file: %w", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open table directory: %w", err)
	}
	defer d.Close() //nolint:errcheck // read-only handle
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync table directory: %w", err)
	}
	return nil
}
