package sources

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"draftsmith/internal/config"
	"draftsmith/internal/services"
)

// StoriesAdapter scrapes an aggregator front page. Rows carry a stable
// story id attribute, which is the native dedup key; relative links are
// resolved against the page URL.
type StoriesAdapter struct {
	client *http.Client
}

func (a *StoriesAdapter) Fetch(ctx context.Context, src config.SourceConfig, limit int) ([]Candidate, error) {
	body, err := fetchBody(ctx, a.client, src.URL, "text/html", "list stories")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "sources", "list stories", "parse html", err)
	}
	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "sources", "list stories", "parse source url", err)
	}

	limit = clampLimit(limit)
	candidates := make([]Candidate, 0, limit)
	doc.Find("tr.athing").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		storyID, _ := row.Attr("id")
		link := row.Find(".titleline a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if storyID == "" || title == "" || href == "" {
			return true
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return true
		}
		candidates = append(candidates, Candidate{
			ExternalID: storyID,
			Title:      title,
			URL:        resolved.String(),
		})
		return len(candidates) < limit
	})
	return candidates, nil
}
