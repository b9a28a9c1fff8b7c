// Package store owns the persisted table of one query: its header schema,
// the identity index of accepted places and the row writer. Concrete
// backends live in internal/storage; this package must not import database
// drivers or file formats directly.
package store
