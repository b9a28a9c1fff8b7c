// Package normalize flattens a place into printable scalar columns.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/places-crawler/internal/place"
	"github.com/JakeFAU/places-crawler/internal/record"
)

// DefaultImageColumns is the number of numbered image columns emitted.
const DefaultImageColumns = 20

// Options controls flattening.
type Options struct {
	// ImageColumns is the fixed number of "Image N" columns. It does not
	// depend on how many images a place actually has.
	ImageColumns int
}

// itemList is a list of structured sub-records, such as reviewers.
type itemList interface {
	Items() [][]place.Pair
}

// mapping is an ordered sub-mapping, such as the star histogram.
type mapping interface {
	Entries() []place.Pair
}

// Flatten converts fields into a flat record. No field is dropped and
// absent values render as place.Unknown.
func Flatten(fields []place.Field, opts Options) *record.Record {
	columns := opts.ImageColumns
	if columns <= 0 {
		columns = DefaultImageColumns
	}
	rec := record.New()
	for _, f := range fields {
		switch v := f.Value.(type) {
		case place.ImageSet:
			for i := 0; i < columns; i++ {
				cell := ""
				if i < len(v) {
					cell = v[i]
				}
				rec.Set(ImageColumn(i+1), cell)
			}
		case itemList:
			rec.Set(f.Name, renderItems(v.Items()))
		case mapping:
			rec.Set(f.Name, renderEntries(v.Entries()))
		case []string:
			rec.Set(f.Name, strings.Join(v, "\n"))
		default:
			rec.Set(f.Name, scalar(v))
		}
	}
	return rec
}

// ImageColumn names the n-th image column, counting from 1.
func ImageColumn(n int) string {
	return "Image " + strconv.Itoa(n)
}

func renderItems(items [][]place.Pair) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		parts := make([]string, 0, len(item))
		for _, p := range item {
			parts = append(parts, p.Key+": "+p.Value)
		}
		lines = append(lines, strings.Join(parts, ", "))
	}
	return strings.Join(lines, "\n")
}

func renderEntries(entries []place.Pair) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Key+": "+e.Value)
	}
	return strings.Join(lines, "\n")
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return place.Unknown
	case string:
		return x
	case place.Text:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
