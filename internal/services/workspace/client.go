package workspace

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
	"draftsmith/internal/services"
)

// Client talks to the review/workspace database API. The pipeline's only
// obligation is to send well-formed records; responses are interpreted no
// further than success, failure, and the created page identifier.
type Client struct {
	cfg        config.Workspace
	httpClient *http.Client
}

// Intake is an approved discovery item offered for editorial review.
type Intake struct {
	ItemID   string
	Title    string
	URL      string
	Score    int
	SourceID string
	Category string
	Section  string
	Tags     []string
}

// Draft is a completed enhancement workflow output.
type Draft struct {
	ItemID   string
	Title    string
	Category string
	Body     string
}

// NewClient constructs a workspace client from configuration.
func NewClient(cfg config.Workspace) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient overrides the HTTP client, primarily for tests.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	if client != nil {
		c.httpClient = client
	}
	return c
}

type pageResponse struct {
	ID string `json:"id"`
}

// CreateIntake records an approved item in the review database.
func (c *Client) CreateIntake(ctx context.Context, intake Intake) (string, error) {
	if strings.TrimSpace(intake.ItemID) == "" || strings.TrimSpace(intake.Title) == "" {
		return "", services.Wrap(services.ErrValidation, "workspace", "create intake", "item id and title required", nil)
	}
	payload := map[string]any{
		"parent": map[string]any{"database_id": c.cfg.DatabaseID},
		"properties": map[string]any{
			"Title":    titleProperty(intake.Title),
			"Item ID":  richTextProperty(intake.ItemID),
			"Source":   richTextProperty(intake.SourceID),
			"URL":      map[string]any{"url": intake.URL},
			"Score":    map[string]any{"number": intake.Score},
			"Category": selectProperty(intake.Category),
			"Section":  selectProperty(intake.Section),
			"Tags":     multiSelectProperty(intake.Tags),
			"Status":   selectProperty("intake"),
		},
	}
	return c.createPage(ctx, "create intake", payload)
}

// CreateDraft records a finished draft with its body as page content.
func (c *Client) CreateDraft(ctx context.Context, draft Draft) (string, error) {
	if strings.TrimSpace(draft.ItemID) == "" || strings.TrimSpace(draft.Body) == "" {
		return "", services.Wrap(services.ErrValidation, "workspace", "create draft", "item id and body required", nil)
	}
	payload := map[string]any{
		"parent": map[string]any{"database_id": c.cfg.DatabaseID},
		"properties": map[string]any{
			"Title":    titleProperty(draft.Title),
			"Item ID":  richTextProperty(draft.ItemID),
			"Category": selectProperty(draft.Category),
			"Status":   selectProperty("draft_ready"),
		},
		"children": paragraphBlocks(draft.Body),
	}
	return c.createPage(ctx, "create draft", payload)
}

// MarkPublished flips a previously created page to the published status.
func (c *Client) MarkPublished(ctx context.Context, pageID string) error {
	if strings.TrimSpace(pageID) == "" {
		return services.Wrap(services.ErrValidation, "workspace", "mark published", "page id required", nil)
	}
	payload := map[string]any{
		"properties": map[string]any{
			"Status":       selectProperty("published"),
			"Published At": map[string]any{"date": map[string]any{"start": time.Now().UTC().Format(time.RFC3339)}},
		},
	}
	_, err := c.send(ctx, http.MethodPatch, "/pages/"+pageID, "mark published", payload)
	return err
}

// Touch refreshes a page's last-verified marker during staleness sweeps.
func (c *Client) Touch(ctx context.Context, pageID string) error {
	if strings.TrimSpace(pageID) == "" {
		return services.Wrap(services.ErrValidation, "workspace", "touch", "page id required", nil)
	}
	payload := map[string]any{
		"properties": map[string]any{
			"Verified At": map[string]any{"date": map[string]any{"start": time.Now().UTC().Format(time.RFC3339)}},
		},
	}
	_, err := c.send(ctx, http.MethodPatch, "/pages/"+pageID, "touch", payload)
	return err
}

func (c *Client) createPage(ctx context.Context, operation string, payload map[string]any) (string, error) {
	body, err := c.send(ctx, http.MethodPost, "/pages", operation, payload)
	if err != nil {
		return "", err
	}
	var page pageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "workspace", operation, "decode response", err)
	}
	return page.ID, nil
}

func (c *Client) send(ctx context.Context, method, path, operation string, payload map[string]any) ([]byte, error) {
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", operation, "base url not configured", nil)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Version != "" {
		req.Header.Set("Notion-Version", c.cfg.Version)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "workspace", operation, "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "workspace", operation, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.Wrap(
			services.ErrExternalTool, "workspace", operation,
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(body)), nil)
	}
	return body, nil
}

func titleProperty(value string) map[string]any {
	return map[string]any{
		"title": []map[string]any{{"text": map[string]any{"content": value}}},
	}
}

func richTextProperty(value string) map[string]any {
	return map[string]any{
		"rich_text": []map[string]any{{"text": map[string]any{"content": value}}},
	}
}

func selectProperty(value string) map[string]any {
	if strings.TrimSpace(value) == "" {
		value = "unset"
	}
	return map[string]any{"select": map[string]any{"name": value}}
}

func multiSelectProperty(values []string) map[string]any {
	options := make([]map[string]any, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		options = append(options, map[string]any{"name": v})
	}
	return map[string]any{"multi_select": options}
}

// paragraphBlocks splits a draft body into paragraph blocks; the workspace API
// caps rich text length per block, so paragraphs map one block each.
func paragraphBlocks(body string) []map[string]any {
	paragraphs := strings.Split(body, "\n\n")
	blocks := make([]map[string]any, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		blocks = append(blocks, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []map[string]any{{"type": "text", "text": map[string]any{"content": p}}},
			},
		})
	}
	return blocks
}

func summarize(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 160 {
		trimmed = trimmed[:160] + "..."
	}
	return trimmed
}
