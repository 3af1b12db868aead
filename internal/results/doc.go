// Package results persists finished batch output: a CSV sink for the
// operator-facing result sheets and a SQLite store that keeps batch runs
// queryable for the report generator and the dashboard API.
//
// Both sinks receive results strictly in input order, because the batch
// scheduler reorders before emitting. Appends are serialized by the
// sinks themselves, so sharing one sink between a batch run and a
// concurrent reader is safe.
package results
