//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/equityscope/research-orchestrator/internal/config"
	"github.com/equityscope/research-orchestrator/internal/orchestrate"
	"github.com/equityscope/research-orchestrator/internal/reportstore"
)

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// Backends is a stub of both external services on one listener: the
// screener scraper and the AI research backend.
type Backends struct {
	Server *httptest.Server

	mu      sync.Mutex
	scraped []string
}

// Scraped returns the symbols the scrape endpoint has seen, in order
func (b *Backends) Scraped() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.scraped))
	copy(out, b.scraped)
	return out
}

// StartBackends serves stub catalog, scrape and research endpoints
func StartBackends(t *testing.T, symbols []string) *Backends {
	t.Helper()
	b := &Backends{}

	mux := http.NewServeMux()
	mux.HandleFunc("/symbols", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"symbols": symbols, "count": len(symbols)})
	})
	mux.HandleFunc("/scrape-symbol", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Symbol string `json:"symbol"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.scraped = append(b.scraped, req.Symbol)
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"symbol":          req.Symbol,
			"screener_symbol": req.Symbol,
			"last_updated":    time.Now().UTC().Format(time.RFC3339),
			"status":          "success",
		})
	})
	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"thesis":"accumulate"}`))
	})
	mux.HandleFunc("/financial-metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pe":18.2,"roe":0.31}`))
	})
	mux.HandleFunc("/structure-sections", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sections":["overview","valuation"]}`))
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

// NewOrchestrator wires a full orchestrator against the stub backends with
// pacing disabled
func NewOrchestrator(t *testing.T, b *Backends) (*orchestrate.Orchestrator, *reportstore.Store) {
	t.Helper()

	cfg := config.Default()
	cfg.General.Shuffle = false
	cfg.Backends.ScraperURL = b.Server.URL
	cfg.Backends.ResearchURL = b.Server.URL
	cfg.Backends.StageTimeoutSec = 5
	cfg.Pacing.MinDelayMs = 0
	cfg.Pacing.MaxDelayMs = 0

	store, err := reportstore.New(TempDBPath(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return orchestrate.New(cfg, store, nil), store
}
