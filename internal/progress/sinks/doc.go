// Package sinks implements progress consumers: a structured log and a
// JSON-lines run journal.
package sinks
