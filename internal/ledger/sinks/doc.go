// Package sinks implements ledger consumers: repository persistence,
// Prometheus counters, structured logging, blob archives, and Pub/Sub export.
// Each sink satisfies ledger.Sink and tolerates repeated Consume calls.
package sinks
