package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// reportKey stores the most recent discovery report.
const reportKey = "discovery/last-report"

// dedupPrefix namespaces dedup records by source kind so a native id reused
// by two kinds can never collide.
const dedupPrefix = "dedup/"

// identity derives the stable per-candidate identifier inside a kind's
// namespace: the native id when the source publishes one, otherwise a hash
// of the canonical link.
func identity(externalID, link string) string {
	if id := strings.TrimSpace(externalID); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(canonicalLink(link)))
	return hex.EncodeToString(sum[:])
}

// DedupKey returns the store key recording that a candidate was seen.
func DedupKey(kind, externalID, link string) string {
	return dedupPrefix + kind + "/" + identity(externalID, link)
}

// ItemID derives the workflow item identifier for an approved candidate.
// It shares the dedup identity so re-approving the same candidate can never
// start a second workflow.
func ItemID(kind, externalID, link string) string {
	id := identity(externalID, link)
	if len(id) > 16 && strings.TrimSpace(externalID) == "" {
		id = id[:16]
	}
	return kind + "-" + id
}

// canonicalLink normalizes a URL just enough for equality: surrounding
// whitespace, fragments, and a trailing slash never distinguish items.
func canonicalLink(link string) string {
	link = strings.TrimSpace(link)
	if i := strings.IndexByte(link, '#'); i >= 0 {
		link = link[:i]
	}
	return strings.TrimRight(link, "/")
}
