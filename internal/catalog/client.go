// Package catalog produces the ordered symbol list a batch run works
// through: the scraper backend's catalog, optionally augmented by a local
// watchlist file, optionally shuffled so the remote service never sees the
// same request order twice.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/equityscope/research-orchestrator/internal/domain"
)

// Client fetches the symbol catalog from the scraper backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client for the given scraper base URL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type symbolsResponse struct {
	Symbols []string `json:"symbols"`
	Count   int      `json:"count"`
}

// Symbols fetches the full symbol catalog. An empty catalog is a valid
// result, not an error; a failed fetch is batch-fatal and surfaces to the
// caller before any item is processed.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/symbols", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching symbol catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching symbol catalog: status %d", resp.StatusCode)
	}

	var body symbolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding symbol catalog: %w", err)
	}

	out := make([]string, 0, len(body.Symbols))
	for _, s := range body.Symbols {
		sym, err := domain.ParseSymbol(s)
		if err != nil {
			continue // catalog noise, skip
		}
		out = append(out, sym)
	}
	return out, nil
}

// Items converts symbols to work items, deduplicated, as an independent
// snapshot the caller may hand to a runner.
func Items(symbols []string, force bool) []domain.WorkItem {
	seen := make(map[string]bool, len(symbols))
	items := make([]domain.WorkItem, 0, len(symbols))
	for _, s := range symbols {
		if seen[s] {
			continue
		}
		seen[s] = true
		items = append(items, domain.WorkItem{Symbol: s, Force: force})
	}
	return items
}

// Shuffle applies a uniform random permutation in place
func Shuffle(items []domain.WorkItem) {
	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
