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

// Announcer posts a short announcement for a featured draft.
type Announcer interface {
	Announce(ctx context.Context, title, url string) error
}

// NewAnnouncer builds a social announcer when an endpoint is configured and
// a noop otherwise.
func NewAnnouncer(cfg config.Crosspost) Announcer {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if !cfg.Enabled || endpoint == "" {
		return noopAnnouncer{}
	}
	return &httpAnnouncer{
		endpoint: endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type httpAnnouncer struct {
	endpoint string
	token    string
	client   *http.Client
}

func (a *httpAnnouncer) Announce(ctx context.Context, title, url string) error {
	body, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("%s\n%s", strings.TrimSpace(title), strings.TrimSpace(url)),
	})
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build announcement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send announcement: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("announcement endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopAnnouncer struct{}

func (noopAnnouncer) Announce(context.Context, string, string) error { return nil }
