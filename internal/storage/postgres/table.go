// Package postgres persists a table in PostgreSQL. Every header column is a
// text column; header growth becomes ALTER TABLE ... ADD COLUMN.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxIdentifier is the PostgreSQL identifier length limit in bytes.
const maxIdentifier = 63

// rowIDColumn orders rows by insertion and is hidden from the header.
const rowIDColumn = "_row_id"

// Config controls the connection pool and the target table.
type Config struct {
	DSN             string
	Schema          string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Table stores rows in one PostgreSQL table.
type Table struct {
	pool    pool
	schema  string
	name    string
	ident   string
	columns map[string]struct{}
}

// Open connects to PostgreSQL and ensures the table exists.
func Open(ctx context.Context, cfg Config) (*Table, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	t, err := NewWithPool(ctx, p, cfg.Schema, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPool builds a table on an existing pool (primarily for testing).
func NewWithPool(ctx context.Context, p pool, schema, name string) (*Table, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if schema == "" {
		schema = "public"
	}
	name = truncateIdentifier(name)
	if name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	t := &Table{
		pool:    p,
		schema:  schema,
		name:    name,
		ident:   pgx.Identifier{schema, name}.Sanitize(),
		columns: map[string]struct{}{},
	}
	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s bigserial PRIMARY KEY)",
		t.ident, pgx.Identifier{rowIDColumn}.Sanitize())
	if _, err := p.Exec(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("create table %s: %w", t.ident, err)
	}
	header, err := t.Header(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range header {
		t.columns[c] = struct{}{}
	}
	return t, nil
}

// Header returns the data columns in ordinal order.
func (t *Table) Header(ctx context.Context) ([]string, error) {
	rows, err := t.pool.Query(ctx, `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2 AND column_name <> $3
ORDER BY ordinal_position`, t.schema, t.name, rowIDColumn)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var header []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		header = append(header, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return header, nil
}

// Scan visits every row in insertion order. NULL cells read as "".
func (t *Table) Scan(ctx context.Context, visit func(row []string) error) error {
	header, err := t.Header(ctx)
	if err != nil {
		return err
	}
	if len(header) == 0 {
		return nil
	}
	exprs := make([]string, len(header))
	for i, c := range header {
		exprs[i] = fmt.Sprintf("COALESCE(%s, '')", pgx.Identifier{c}.Sanitize())
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(exprs, ", "), t.ident, pgx.Identifier{rowIDColumn}.Sanitize())

	rows, err := t.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	cells := make([]string, len(header))
	dest := make([]any, len(header))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := visit(append([]string(nil), cells...)); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	return nil
}

// Append adds any new header columns and inserts row in one transaction.
func (t *Table) Append(ctx context.Context, header []string, row []string, grew bool) (err error) {
	if len(header) != len(row) {
		return fmt.Errorf("row has %d cells for %d columns", len(row), len(header))
	}
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var added []string
	if grew {
		for _, col := range header {
			if _, ok := t.columns[col]; ok {
				continue
			}
			alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s text",
				t.ident, pgx.Identifier{col}.Sanitize())
			if _, err = tx.Exec(ctx, alter); err != nil {
				return fmt.Errorf("add column %q: %w", col, err)
			}
			added = append(added, col)
		}
	}

	cols := make([]string, len(header))
	params := make([]string, len(header))
	args := make([]any, len(row))
	for i := range header {
		cols[i] = pgx.Identifier{header[i]}.Sanitize()
		params[i] = "$" + strconv.Itoa(i+1)
		args[i] = row[i]
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.ident, strings.Join(cols, ", "), strings.Join(params, ", "))
	if _, err = tx.Exec(ctx, insert, args...); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	for _, col := range added {
		t.columns[col] = struct{}{}
	}
	return nil
}

// Location returns a postgres:// pseudo URI naming the table.
func (t *Table) Location() string {
	return fmt.Sprintf("postgres://%s.%s", t.schema, t.name)
}

// Close releases the pool.
func (t *Table) Close() error {
	t.pool.Close()
	return nil
}

func truncateIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxIdentifier {
		return s
	}
	cut := maxIdentifier
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
