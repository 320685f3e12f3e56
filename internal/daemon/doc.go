// Package daemon combines the queue poller, the discovery sweep, and the
// scheduled publish jobs into a single lifecycle with flock-based locking to
// prevent multiple concurrent instances.
package daemon
