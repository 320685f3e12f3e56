// Package store implements the shared key/value state store contract: durable
// string-to-string mapping with optional TTL, list-by-prefix, and a
// revision-conditional write used for optimistic concurrency.
//
// The store is the sole durable home of WorkflowState records, dedup records,
// and discovery run reports. It is backed by SQLite with WAL journaling and
// the same busy-retry discipline as the work queue.
package store
