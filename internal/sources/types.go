package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"draftsmith/internal/config"
	"draftsmith/internal/services"
)

// Candidate is the uniform shape every adapter reduces its source to.
// ExternalID is the source's native identifier and may be empty for feeds
// that publish none; discovery derives the dedup key either way.
type Candidate struct {
	ExternalID  string
	Title       string
	Description string
	URL         string
	PublishedAt time.Time
}

// Adapter lists the newest items from one configured source.
type Adapter interface {
	Fetch(ctx context.Context, src config.SourceConfig, limit int) ([]Candidate, error)
}

// maxResponseBytes bounds untrusted source payloads.
const maxResponseBytes = 4 << 20

// ForKind returns the adapter handling a source kind.
func ForKind(kind string, client *http.Client) (Adapter, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	switch kind {
	case config.KindVideo:
		return &VideoAdapter{client: client}, nil
	case config.KindFeed:
		return &FeedAdapter{client: client}, nil
	case config.KindReleases:
		return &ReleasesAdapter{client: client}, nil
	case config.KindStories:
		return &StoriesAdapter{client: client}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "sources", "select adapter", fmt.Sprintf("unknown source kind %q", kind), nil)
	}
}

func fetchBody(ctx context.Context, client *http.Client, url, accept, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "sources", operation, "build request", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", "draftsmith/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "sources", operation, "fetch", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrExternalTool, "sources", operation, fmt.Sprintf("http %d from %s", resp.StatusCode, url), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "sources", operation, "read body", err)
	}
	return body, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 25
	}
	return limit
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
