package sources

import (
	"context"
	"encoding/xml"
	"net/http"
	"time"

	"draftsmith/internal/config"
	"draftsmith/internal/services"
)

// FeedAdapter lists entries from RSS 2.0 and Atom feeds. Many feeds publish
// no stable native id, so candidates may leave ExternalID empty and rely on
// the canonical link for dedup.
type FeedAdapter struct {
	client *http.Client
}

type rssDocument struct {
	XMLName xml.Name  `xml:"rss"`
	Items   []rssItem `xml:"channel>item"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomDocument struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Updated string `xml:"updated"`
	Links   []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

func (a *FeedAdapter) Fetch(ctx context.Context, src config.SourceConfig, limit int) ([]Candidate, error) {
	body, err := fetchBody(ctx, a.client, src.URL, "application/rss+xml, application/atom+xml, application/xml", "list feed")
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	var rss rssDocument
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Items) > 0 {
		return rssCandidates(rss.Items, limit), nil
	}
	var atom atomDocument
	if err := xml.Unmarshal(body, &atom); err == nil && len(atom.Entries) > 0 {
		return atomCandidates(atom.Entries, limit), nil
	}
	return nil, services.Wrap(services.ErrExternalTool, "sources", "list feed", "payload is neither rss nor atom", nil)
}

func rssCandidates(items []rssItem, limit int) []Candidate {
	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		if item.Link == "" {
			continue
		}
		published, _ := time.Parse(time.RFC1123Z, item.PubDate)
		if published.IsZero() {
			published, _ = time.Parse(time.RFC1123, item.PubDate)
		}
		candidates = append(candidates, Candidate{
			ExternalID:  "",
			Title:       item.Title,
			Description: item.Description,
			URL:         item.Link,
			PublishedAt: published,
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates
}

func atomCandidates(entries []atomEntry, limit int) []Candidate {
	candidates := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		link := ""
		for _, l := range entry.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		if link == "" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, entry.Updated)
		candidates = append(candidates, Candidate{
			ExternalID:  "",
			Title:       entry.Title,
			Description: entry.Summary,
			URL:         link,
			PublishedAt: published,
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates
}
