// Package dispatch routes leased queue messages to their kind's handler
// with ack-on-success, delayed-retry-on-failure semantics.
package dispatch
