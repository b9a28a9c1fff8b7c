// Package progress provides the run event primitives and the non-blocking
// hub the pipeline reports through. The hub batches events on a background
// goroutine and fans them out to pluggable sinks such as a structured log or
// a JSON-lines run journal.
package progress
