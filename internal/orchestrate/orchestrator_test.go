package orchestrate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityscope/research-orchestrator/internal/catalog"
	"github.com/equityscope/research-orchestrator/internal/config"
	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/notify"
	"github.com/equityscope/research-orchestrator/internal/reportstore"
)

type capturingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *capturingNotifier) Send(n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *capturingNotifier) last() (notify.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return notify.Notification{}, false
	}
	return c.sent[len(c.sent)-1], true
}

// newScraperStub serves the catalog listing plus per-symbol scrapes
func newScraperStub(t *testing.T, symbols []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/symbols", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"symbols": symbols, "count": len(symbols)})
	})
	mux.HandleFunc("/scrape-symbol", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Symbol string `json:"symbol"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"symbol":          req.Symbol,
			"screener_symbol": req.Symbol,
			"last_updated":    time.Now().UTC().Format(time.RFC3339),
			"status":          "success",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newResearchStub serves all three report stages
func newResearchStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"thesis":"hold"}`))
	})
	mux.HandleFunc("/financial-metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pe":21.4}`))
	})
	mux.HandleFunc("/structure-sections", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sections":["overview"]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestOrchestrator(t *testing.T, scraperURL, researchURL string) (*Orchestrator, *reportstore.Store, *capturingNotifier) {
	t.Helper()
	cfg := config.Default()
	cfg.General.Shuffle = false
	cfg.Backends.ScraperURL = scraperURL
	cfg.Backends.ResearchURL = researchURL
	cfg.Backends.StageTimeoutSec = 5
	cfg.Pacing.MinDelayMs = 0
	cfg.Pacing.MaxDelayMs = 0

	store, err := reportstore.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	notifier := &capturingNotifier{}
	return New(cfg, store, notifier), store, notifier
}

func TestRunScrapePersistsSymbols(t *testing.T) {
	scraper := newScraperStub(t, []string{"AAPL", "MSFT"})
	orch, store, notifier := newTestOrchestrator(t, scraper.URL, scraper.URL)

	res, err := orch.RunScrape(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, res.State)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.Failed)

	rec, err := store.GetSymbol("AAPL")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "AAPL", rec.ScreenerSymbol)
	assert.False(t, rec.LastUpdated.IsZero())

	n, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, res.RunID, n.RunID)
	assert.Equal(t, notify.NotifySuccess, n.Type)
}

func TestRunScrapeRecordsBatchHistory(t *testing.T) {
	scraper := newScraperStub(t, []string{"AAPL"})
	orch, store, _ := newTestOrchestrator(t, scraper.URL, scraper.URL)

	res, err := orch.RunScrape(context.Background(), Options{})
	require.NoError(t, err)

	batches, err := store.ListBatches(10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, res.RunID, batches[0].ID)
	assert.Equal(t, domain.BatchScrape, batches[0].Kind)
	assert.Equal(t, domain.RunCompleted, batches[0].State)
	assert.Equal(t, 1, batches[0].Succeeded)
	require.NotNil(t, batches[0].FinishedAt)

	logs, err := store.BatchLogs(res.RunID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

func TestRunScrapeCatalogFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	orch, store, _ := newTestOrchestrator(t, srv.URL, srv.URL)

	_, err := orch.RunScrape(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "building work list")

	batches, err := store.ListBatches(10)
	require.NoError(t, err)
	assert.Empty(t, batches)
	assert.False(t, orch.Busy())
}

func TestRunGeneratePersistsReports(t *testing.T) {
	research := newResearchStub(t)
	orch, store, _ := newTestOrchestrator(t, research.URL, research.URL)

	res, err := orch.RunGenerate(context.Background(), Options{Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	rep, err := store.GetReport("AAPL")
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, res.RunID, rep.Version)
	assert.JSONEq(t, `{"thesis":"hold"}`, rep.Research)
	assert.JSONEq(t, `{"pe":21.4}`, rep.Metrics)
	assert.False(t, rep.Degraded)
}

func TestRunGenerateMetricsDegradationPersisted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/research", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"thesis":"hold"}`))
	})
	mux.HandleFunc("/financial-metrics", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics unavailable", http.StatusBadGateway)
	})
	mux.HandleFunc("/structure-sections", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sections":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	orch, store, _ := newTestOrchestrator(t, srv.URL, srv.URL)

	res, err := orch.RunGenerate(context.Background(), Options{Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, res.Degraded)

	rep, err := store.GetReport("AAPL")
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.True(t, rep.Degraded)
	assert.Empty(t, rep.Metrics)
}

func TestRunGenerateStaleOnly(t *testing.T) {
	research := newResearchStub(t)
	orch, store, _ := newTestOrchestrator(t, research.URL, research.URL)

	// OLD has an outdated report, FRESH a current one
	for _, sym := range []string{"OLD", "FRESH"} {
		require.NoError(t, store.SaveSymbol(&domain.SymbolRecord{Symbol: sym}))
	}
	_, err := store.SaveReport(&domain.Report{Symbol: "FRESH", Version: "v1", Research: "{}"})
	require.NoError(t, err)

	res, err := orch.RunGenerate(context.Background(), Options{StaleOnly: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "OLD", res.Outcomes[0].Item.Symbol)
}

func TestRunRejectsConcurrentAndCancels(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/symbols", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"symbols": []string{"AAPL", "MSFT"}, "count": 2})
	})
	mux.HandleFunc("/scrape-symbol", func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(map[string]any{"symbol": "AAPL", "status": "success"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	orch, _, _ := newTestOrchestrator(t, srv.URL, srv.URL)

	done := make(chan error, 1)
	go func() {
		_, err := orch.RunScrape(context.Background(), Options{})
		done <- err
	}()

	waitFor(t, orch.Busy)

	_, err := orch.RunScrape(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	require.True(t, orch.Cancel())
	close(release)
	require.NoError(t, <-done)

	snap := orch.Tracker().Snapshot()
	assert.Equal(t, domain.RunCancelled, snap.State)
	assert.False(t, orch.Busy())
	assert.False(t, orch.Cancel())
}

func TestStartClaimsSlotBeforeReturning(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/symbols", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"symbols": []string{"AAPL"}, "count": 1})
	})
	mux.HandleFunc("/scrape-symbol", func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(map[string]any{"symbol": "AAPL", "status": "success"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	orch, _, _ := newTestOrchestrator(t, srv.URL, srv.URL)

	// Back-to-back Starts must not both win the run slot: the slot is
	// claimed before Start returns, not inside the launched goroutine.
	require.NoError(t, orch.Start(domain.BatchScrape, Options{}))
	assert.ErrorIs(t, orch.Start(domain.BatchScrape, Options{}), ErrRunInProgress)
	assert.True(t, orch.Busy())

	close(release)
	waitFor(t, func() bool { return !orch.Busy() })
}

func TestSetWatchlistFiltersCatalog(t *testing.T) {
	scraper := newScraperStub(t, []string{"AAPL", "MSFT", "NVDA"})
	orch, _, _ := newTestOrchestrator(t, scraper.URL, scraper.URL)

	orch.SetWatchlist(&catalog.Watchlist{Symbols: []string{"MSFT"}, Only: true})

	res, err := orch.RunScrape(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "MSFT", res.Outcomes[0].Item.Symbol)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
