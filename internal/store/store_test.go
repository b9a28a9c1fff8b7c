package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/record"
	"github.com/JakeFAU/places-crawler/internal/storage"
	"github.com/JakeFAU/places-crawler/internal/storage/csvfile"
	"github.com/JakeFAU/places-crawler/internal/storage/memory"
)

func newMemoryStore(t *testing.T) (*Store, *memory.Table) {
	t.Helper()
	tbl := memory.NewTable("cafe_in_surat")
	s, err := New(context.Background(), tbl, zap.NewNop())
	require.NoError(t, err)
	return s, tbl
}

func TestWriteRowRejectsCaseAndSpaceVariantDuplicate(t *testing.T) {
	t.Parallel()

	s, _ := newMemoryStore(t)
	ctx := context.Background()

	out, err := s.WriteRow(ctx, record.FromPairs("Name", "Joe's Cafe", "Address", "123 Main St", "Rating", "4.5"))
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)

	out, err = s.WriteRow(ctx, record.FromPairs("Name", "JOE'S CAFE", "Address", " 123 Main St ", "Rating", "4.1"))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, out)
	assert.Equal(t, 1, s.RowCount())
}

func TestWriteRowRejectsIncompleteIdentity(t *testing.T) {
	t.Parallel()

	s, tbl := newMemoryStore(t)
	ctx := context.Background()

	for _, rec := range []*record.Record{
		record.FromPairs("Name", "X", "Address", ""),
		record.FromPairs("Name", "X", "Address", "N/A"),
		record.FromPairs("Name", "X"),
	} {
		out, err := s.WriteRow(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, Incomplete, out)
	}
	assert.Empty(t, s.Header())
	assert.Zero(t, s.RowCount())
	assert.False(t, s.Contains("X", ""))
	assert.Empty(t, tbl.Rows())
}

func TestRowCountMatchesAcceptedWrites(t *testing.T) {
	t.Parallel()

	s, tbl := newMemoryStore(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C", "D"} {
		out, err := s.WriteRow(ctx, record.FromPairs("Name", name, "Address", name+" street"))
		require.NoError(t, err)
		require.Equal(t, Accepted, out)
	}
	assert.Equal(t, 4, s.RowCount())
	assert.Len(t, tbl.Rows(), 4)
}

func TestHeaderOnlyGrowsAndKeepsPositions(t *testing.T) {
	t.Parallel()

	s, tbl := newMemoryStore(t)
	ctx := context.Background()

	_, err := s.WriteRow(ctx, record.FromPairs("Name", "A", "Address", "1", "Rating", "4"))
	require.NoError(t, err)
	first := s.Header()
	assert.Equal(t, []string{"Name", "Address", "Rating"}, first)

	_, err = s.WriteRow(ctx, record.FromPairs("Phone", "555", "Name", "B", "Address", "2"))
	require.NoError(t, err)
	second := s.Header()
	assert.Equal(t, []string{"Name", "Address", "Rating", "Phone"}, second)
	assert.Equal(t, first, second[:len(first)])

	_, err = s.WriteRow(ctx, record.FromPairs("Name", "C", "Address", "3"))
	require.NoError(t, err)
	assert.Equal(t, second, s.Header())

	assert.Equal(t, [][]string{
		{"A", "1", "4"},
		{"B", "2", "", "555"},
		{"C", "3", "", ""},
	}, tbl.Rows())
}

func TestNewRebuildsIndexFromPersistedRows(t *testing.T) {
	t.Parallel()

	tbl := memory.NewTableWithRows("cafe",
		[]string{"Rating", "Name", "Address"},
		[]string{"4", "Joe's Cafe", "123 Main St"},
		[]string{"3", "Bean", "9 Side St"},
		[]string{"5", "", "orphan"},
	)
	s, err := New(context.Background(), tbl, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 3, s.RowCount())
	assert.True(t, s.Contains("joe's cafe", "123 main st"))
	assert.True(t, s.Contains("BEAN", "9 Side St"))

	out, err := s.WriteRow(context.Background(), record.FromPairs("Name", "Joe's Cafe ", "Address", "123 MAIN ST"))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, out)
}

func TestNewWithoutIdentityColumnsKeepsEmptyIndex(t *testing.T) {
	t.Parallel()

	tbl := memory.NewTableWithRows("cafe", []string{"Maps URL", "Rating"}, []string{"https://m/1", "4"})
	s, err := New(context.Background(), tbl, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, s.RowCount())

	out, err := s.WriteRow(context.Background(), record.FromPairs("Name", "A", "Address", "1"))
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)
	assert.Equal(t, []string{"Maps URL", "Rating", "Name", "Address"}, s.Header())
}

func TestResumeAcrossReopenOnCSV(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	opener := func(_ context.Context, name string) (storage.Table, error) {
		return csvfile.Open(filepath.Join(dir, name+".csv"))
	}

	first, err := Open(ctx, "Cafe in Surat", opener, zap.NewNop())
	require.NoError(t, err)
	for _, name := range []string{"A", "B", "C"} {
		_, err := first.WriteRow(ctx, record.FromPairs("Name", name, "Address", "Main"))
		require.NoError(t, err)
	}
	require.NoError(t, first.Close())
	assert.Equal(t, filepath.Join(dir, "cafe_in_surat.csv"), first.Location())

	second, err := Open(ctx, "  cafe IN surat", opener, zap.NewNop())
	require.NoError(t, err)
	defer second.Close() //nolint:errcheck // test cleanup
	assert.Equal(t, 3, second.RowCount())

	out, err := second.WriteRow(ctx, record.FromPairs("Name", "b", "Address", "main"))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, out)
	out, err = second.WriteRow(ctx, record.FromPairs("Name", "D", "Address", "Main"))
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)
	assert.Equal(t, 4, second.RowCount())
}

type flakyTable struct {
	*memory.Table
	fail error
}

func (f *flakyTable) Append(ctx context.Context, header, row []string, grew bool) error {
	if f.fail != nil {
		return f.fail
	}
	return f.Table.Append(ctx, header, row, grew)
}

func TestWriteRowFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tbl := &flakyTable{Table: memory.NewTable("cafe")}
	s, err := New(ctx, tbl, zap.NewNop())
	require.NoError(t, err)

	_, err = s.WriteRow(ctx, record.FromPairs("Name", "A", "Address", "1"))
	require.NoError(t, err)

	tbl.fail = errors.New("disk full")
	rec := record.FromPairs("Name", "B", "Address", "2", "Phone", "555")
	_, err = s.WriteRow(ctx, rec)
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, []string{"Name", "Address"}, s.Header())
	assert.Equal(t, 1, s.RowCount())
	assert.False(t, s.Contains("B", "2"))

	tbl.fail = nil
	out, err := s.WriteRow(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)
	assert.Equal(t, []string{"Name", "Address", "Phone"}, s.Header())
}

func TestWriteAfterCloseFails(t *testing.T) {
	t.Parallel()

	s, _ := newMemoryStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err := s.WriteRow(context.Background(), record.FromPairs("Name", "A", "Address", "1"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestOpenRejectsEmptyName(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "!!!", func(context.Context, string) (storage.Table, error) {
		t.Fatal("opener must not be called")
		return nil, nil
	}, zap.NewNop())
	require.Error(t, err)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "duplicate", Duplicate.String())
	assert.Equal(t, "incomplete", Incomplete.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
