// Package queue implements the work queue contract the orchestrator depends
// on: typed messages with at-least-once delivery, per-message acknowledgment,
// and delayed retry. Delivery is lease-based; a message claimed by a consumer
// that never resolves it becomes deliverable again after the lease window.
package queue
