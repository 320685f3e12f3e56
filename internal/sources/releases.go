package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"draftsmith/internal/config"
	"draftsmith/internal/services"
)

// ReleasesAdapter lists project releases from a forge releases API. The
// numeric release id is the native dedup key.
type ReleasesAdapter struct {
	client *http.Client
}

type releaseEntry struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	TagName     string `json:"tag_name"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	Draft       bool   `json:"draft"`
	Prerelease  bool   `json:"prerelease"`
	PublishedAt string `json:"published_at"`
}

func (a *ReleasesAdapter) Fetch(ctx context.Context, src config.SourceConfig, limit int) ([]Candidate, error) {
	body, err := fetchBody(ctx, a.client, src.URL, "application/vnd.github+json", "list releases")
	if err != nil {
		return nil, err
	}
	var entries []releaseEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "sources", "list releases", "parse payload", err)
	}

	limit = clampLimit(limit)
	candidates := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		if entry.Draft || entry.Prerelease {
			continue
		}
		if entry.HTMLURL == "" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, entry.PublishedAt)
		candidates = append(candidates, Candidate{
			ExternalID:  strconv.FormatInt(entry.ID, 10),
			Title:       firstNonEmpty(entry.Name, entry.TagName),
			Description: entry.Body,
			URL:         entry.HTMLURL,
			PublishedAt: published,
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}
