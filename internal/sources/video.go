package sources

import (
	"context"
	"encoding/xml"
	"net/http"
	"time"

	"draftsmith/internal/config"
	"draftsmith/internal/services"
)

// VideoAdapter lists a channel's uploads from its Atom feed. Video feeds
// carry a native video id, which becomes the dedup key directly.
type VideoAdapter struct {
	client *http.Client
}

type videoFeed struct {
	Entries []videoEntry `xml:"entry"`
}

type videoEntry struct {
	VideoID   string `xml:"videoId"`
	Title     string `xml:"title"`
	Published string `xml:"published"`
	Link      struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Media struct {
		Description string `xml:"description"`
	} `xml:"group"`
}

func (a *VideoAdapter) Fetch(ctx context.Context, src config.SourceConfig, limit int) ([]Candidate, error) {
	body, err := fetchBody(ctx, a.client, src.URL, "application/atom+xml", "list videos")
	if err != nil {
		return nil, err
	}
	var feed videoFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "sources", "list videos", "parse feed", err)
	}

	limit = clampLimit(limit)
	candidates := make([]Candidate, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry.VideoID == "" && entry.Link.Href == "" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, entry.Published)
		candidates = append(candidates, Candidate{
			ExternalID:  entry.VideoID,
			Title:       entry.Title,
			Description: entry.Media.Description,
			URL:         entry.Link.Href,
			PublishedAt: published,
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}
