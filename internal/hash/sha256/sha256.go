// Package sha256 computes content digests for archived tables.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Sum returns the hex SHA-256 digest of data.
func Sum(data []byte) string {
	s := sha256.Sum256(data)
	return hex.EncodeToString(s[:])
}

// Reader hashes and counts everything read through it.
type Reader struct {
	src io.Reader
	h   hash.Hash
	n   int64
}

// NewReader wraps src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, h: sha256.New()}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		_, _ = r.h.Write(p[:n])
		r.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far.
func (r *Reader) Sum() string {
	return hex.EncodeToString(r.h.Sum(nil))
}

// Len returns the number of bytes read so far.
func (r *Reader) Len() int64 {
	return r.n
}
