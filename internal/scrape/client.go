// Package scrape talks to the scraping backend and defines the per-symbol
// scrape pipeline, including the AI-assisted slug fallback taken when the
// screener does not know a symbol under its plain ticker.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound marks a scrape that failed because the screener has no page
// for the requested identifier. Callers branch on it to trigger the slug
// fallback.
var ErrNotFound = errors.New("symbol not found on screener")

// Client calls the scraping backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a scrape client for the given backend base URL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type scrapeRequest struct {
	Symbol string `json:"symbol"`
	Force  bool   `json:"force,omitempty"`
}

// Result is the scrape backend's per-symbol response
type Result struct {
	Symbol         string `json:"symbol"`
	ScreenerSymbol string `json:"screener_symbol"`
	LastUpdated    string `json:"last_updated"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// Scrape asks the backend to scrape one symbol. A backend-reported
// not-found failure maps to ErrNotFound; any other failure is a plain error.
func (c *Client) Scrape(ctx context.Context, symbol string, force bool) (*Result, error) {
	body, err := json.Marshal(scrapeRequest{Symbol: symbol, Force: force})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape-symbol", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scraping %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("scraping %s: %w", symbol, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scraping %s: status %d", symbol, resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("scraping %s: decoding response: %w", symbol, err)
	}

	if res.Status != "success" {
		if isNotFound(res.Error) {
			return nil, fmt.Errorf("scraping %s: %w", symbol, ErrNotFound)
		}
		return nil, fmt.Errorf("scraping %s: backend reported: %s", symbol, res.Error)
	}
	return &res, nil
}

func isNotFound(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
