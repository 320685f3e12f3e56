package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"draftsmith/internal/config"
)

// DigestSender delivers the weekly digest of published items.
type DigestSender interface {
	SendDigest(ctx context.Context, items []PublishedRecord) error
}

// NewDigestSender builds a newsletter sender when configured and a noop
// otherwise.
func NewDigestSender(cfg config.Newsletter) DigestSender {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if !cfg.Enabled || endpoint == "" {
		return noopDigestSender{}
	}
	return &httpDigestSender{
		endpoint: endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type digestItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

type httpDigestSender struct {
	endpoint string
	token    string
	client   *http.Client
}

func (s *httpDigestSender) SendDigest(ctx context.Context, items []PublishedRecord) error {
	if len(items) == 0 {
		return nil
	}
	entries := make([]digestItem, 0, len(items))
	for _, item := range items {
		entries = append(entries, digestItem{
			Title:       item.Title,
			URL:         item.URL,
			PublishedAt: item.PublishedAt,
		})
	}
	body, err := json.Marshal(map[string]any{
		"subject": fmt.Sprintf("Weekly digest: %d new posts", len(entries)),
		"items":   entries,
	})
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build digest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("newsletter endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopDigestSender struct{}

func (noopDigestSender) SendDigest(context.Context, []PublishedRecord) error { return nil }
