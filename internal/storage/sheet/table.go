// Package sheet persists a table as a single worksheet of an .xlsx workbook.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet names the worksheet of newly created workbooks.
const DefaultSheet = "Places"

const contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Table keeps the workbook open and saves the whole workbook after every
// append through a temporary file and an atomic rename.
type Table struct {
	mu    sync.Mutex
	path  string
	sheet string
	file  *excelize.File
	// rows counts worksheet rows in use, header included.
	rows int
}

// Open loads the workbook at path or creates it with a single sheet.
func Open(path, sheetName string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	if sheetName == "" {
		sheetName = DefaultSheet
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create workbook directory: %w", err)
	}

	t := &Table{path: path, sheet: sheetName}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		f, openErr := excelize.OpenFile(path)
		if openErr != nil {
			return nil, fmt.Errorf("open workbook: %w", openErr)
		}
		t.file = f
		t.sheet = pickSheet(f, sheetName)
		rows, rowsErr := f.GetRows(t.sheet)
		if rowsErr != nil {
			_ = f.Close()
			return nil, fmt.Errorf("read worksheet %q: %w", t.sheet, rowsErr)
		}
		t.rows = len(rows)
	case errors.Is(err, os.ErrNotExist):
		f := excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("name worksheet: %w", err)
		}
		t.file = f
		if err := t.save(); err != nil {
			_ = f.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("stat workbook: %w", err)
	}
	return t, nil
}

// pickSheet prefers the configured sheet and falls back to the active one.
func pickSheet(f *excelize.File, want string) string {
	for _, name := range f.GetSheetList() {
		if name == want {
			return name
		}
	}
	return f.GetSheetName(f.GetActiveSheetIndex())
}

// Header returns the first worksheet row.
func (t *Table) Header(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows, err := t.file.GetRows(t.sheet)
	if err != nil {
		return nil, fmt.Errorf("read worksheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return trimEmpty(rows[0]), nil
}

// Scan visits each worksheet row after the header.
func (t *Table) Scan(ctx context.Context, visit func(row []string) error) error {
	t.mu.Lock()
	rows, err := t.file.GetRows(t.sheet)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("read worksheet: %w", err)
	}
	for i := 1; i < len(rows); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visit(rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// Append writes the header cells in place when grew is set, writes row on
// the next free worksheet row and saves the workbook.
func (t *Table) Append(_ context.Context, header []string, row []string, grew bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if grew || t.rows == 0 {
		if err := t.file.SetSheetRow(t.sheet, "A1", &header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	next := t.rows + 1
	if t.rows == 0 {
		next = 2
	}
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return fmt.Errorf("resolve row cell: %w", err)
	}
	if err := t.file.SetSheetRow(t.sheet, cell, &row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := t.save(); err != nil {
		return err
	}
	t.rows = next
	return nil
}

// Location returns the workbook path.
func (t *Table) Location() string { return t.path }

// Path returns the workbook path.
func (t *Table) Path() string { return t.path }

// ContentType returns the MIME type of the workbook.
func (t *Table) ContentType() string { return contentType }

// SheetName reports the worksheet in use.
func (t *Table) SheetName() string { return t.sheet }

// Close releases the workbook.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	return nil
}

func (t *Table) save() error {
	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := t.file.Write(tmp); err != nil {
		return fail(fmt.Errorf("write workbook: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync workbook: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp workbook: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

func trimEmpty(cells []string) []string {
	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return cells[:end]
}
