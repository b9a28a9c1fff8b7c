// Package record holds the flat, column-ordered form of a place.
package record

// Record maps column names to printable values and remembers the order in
// which columns were first set.
type Record struct {
	columns []string
	values  map[string]string
}

// New returns an empty record.
func New() *Record {
	return &Record{values: map[string]string{}}
}

// FromPairs builds a record from alternating column/value arguments.
// A trailing column without a value is ignored.
func FromPairs(kv ...string) *Record {
	r := New()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Set assigns a value. Re-setting a column keeps its original position.
func (r *Record) Set(column, value string) {
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

// Get returns the value of a column and whether it is present.
func (r *Record) Get(column string) (string, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Columns returns the columns in first-set order.
func (r *Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len reports the number of columns.
func (r *Record) Len() int {
	return len(r.columns)
}
