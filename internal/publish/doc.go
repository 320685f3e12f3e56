// Package publish handles the post-draft side of the pipeline: marking
// workspace pages published, crossposting featured drafts, refreshing stale
// items, and the weekly newsletter digest.
package publish
