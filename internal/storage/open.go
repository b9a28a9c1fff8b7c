package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/places-crawler/internal/storage/csvfile"
	"github.com/JakeFAU/places-crawler/internal/storage/memory"
	"github.com/JakeFAU/places-crawler/internal/storage/postgres"
	"github.com/JakeFAU/places-crawler/internal/storage/sheet"
)

// Supported table formats.
const (
	FormatXLSX     = "xlsx"
	FormatCSV      = "csv"
	FormatPostgres = "postgres"
	FormatMemory   = "memory"
)

// Formats lists every supported table format.
func Formats() []string {
	return []string{FormatXLSX, FormatCSV, FormatPostgres, FormatMemory}
}

// Options selects and configures a table backend.
type Options struct {
	Format         string
	Dir            string
	Sheet          string
	PostgresDSN    string
	PostgresSchema string
}

// Open opens (creating if needed) the table called name.
func Open(ctx context.Context, opts Options, name string) (Table, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("table name is required")
	}
	switch opts.Format {
	case FormatXLSX, "":
		return sheet.Open(filepath.Join(opts.Dir, name+".xlsx"), opts.Sheet)
	case FormatCSV:
		return csvfile.Open(filepath.Join(opts.Dir, name+".csv"))
	case FormatPostgres:
		return postgres.Open(ctx, postgres.Config{
			DSN:    opts.PostgresDSN,
			Schema: opts.PostgresSchema,
			Table:  name,
		})
	case FormatMemory:
		return memory.NewTable(name), nil
	default:
		return nil, fmt.Errorf("unknown storage format %q", opts.Format)
	}
}
