// Package ledger records resolved clicks off the redirect path.
//
// Callers hand clicks and counter increments to a Hub, which buffers them in a
// bounded channel and flushes batches to one or more Sinks from a single
// background goroutine. Append and IncrementCount never block; when the
// buffer is full the entry is dropped and counted. Close drains what is
// buffered, flushes it, and closes every sink.
package ledger
