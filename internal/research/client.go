// Package research talks to the AI research backend and defines the
// three-stage report pipeline: research, financial metrics (best-effort),
// structured sections. Each stage's request carries the prior stages'
// payloads.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls the AI research backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a research client for the given backend base URL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("POST %s: decoding response: %w", path, err)
	}
	return nil
}

// Research runs the first stage: deep research for one symbol
func (c *Client) Research(ctx context.Context, symbol string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.post(ctx, "/research", map[string]any{"symbol": symbol}, &out)
	return out, err
}

// Metrics runs the second stage: financial metrics derived from the
// research payload. Callers treat its failure as best-effort.
func (c *Client) Metrics(ctx context.Context, symbol string, research json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.post(ctx, "/financial-metrics", map[string]any{
		"symbol":   symbol,
		"research": research,
	}, &out)
	return out, err
}

// Sections runs the third stage: structured report sections. metrics may be
// nil when the metrics stage degraded; the backend receives an explicit null.
func (c *Client) Sections(ctx context.Context, symbol string, research, metrics json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.post(ctx, "/structure-sections", map[string]any{
		"symbol":   symbol,
		"research": research,
		"metrics":  metrics,
	}, &out)
	return out, err
}

type slugResponse struct {
	Slug string `json:"slug"`
}

// ResolveSlug asks the AI backend for the screener identifier of a symbol
// the plain ticker did not match. Satisfies scrape.SlugResolver.
func (c *Client) ResolveSlug(ctx context.Context, symbol string) (string, error) {
	var out slugResponse
	if err := c.post(ctx, "/resolve-slug", map[string]any{"symbol": symbol}, &out); err != nil {
		return "", err
	}
	if out.Slug == "" {
		return "", fmt.Errorf("no slug for %s", symbol)
	}
	return out.Slug, nil
}
