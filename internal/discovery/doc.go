// Package discovery sweeps configured sources for new candidates, scores
// them, and admits those above a source's threshold into the enhancement
// workflow. Seen candidates are recorded with a TTL so repeat sweeps are
// idempotent within the retention window.
package discovery
