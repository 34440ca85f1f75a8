package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/runner"
)

type stubResolver struct {
	slug  string
	err   error
	calls int32
}

func (s *stubResolver) ResolveSlug(_ context.Context, _ string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.slug, s.err
}

func runOne(t *testing.T, pipe runner.Pipeline[domain.WorkItem, Context], symbol string) *runner.Result[domain.WorkItem] {
	t.Helper()
	r := runner.New(runner.Config{Kind: domain.BatchScrape}, pipe, nil)
	return r.Run(context.Background(), []domain.WorkItem{{Symbol: symbol}}, nil)
}

func TestPipelineDirectHit(t *testing.T) {
	var scrapes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&scrapes, 1)
		json.NewEncoder(w).Encode(Result{Symbol: "AAPL", ScreenerSymbol: "apple-inc", Status: "success"})
	}))
	defer srv.Close()

	resolver := &stubResolver{}
	pipe := NewPipeline(NewClient(srv.URL, 0), resolver, 0)
	res := runOne(t, pipe, "AAPL")

	if res.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1; outcome err: %v", res.Succeeded, res.Outcomes[0].Err)
	}
	if atomic.LoadInt32(&scrapes) != 1 {
		t.Errorf("scrape calls = %d, want 1", scrapes)
	}
	if atomic.LoadInt32(&resolver.calls) != 0 {
		t.Errorf("resolver calls = %d, want 0 on a direct hit", resolver.calls)
	}
}

func TestPipelineSlugFallback(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scrapeRequest
		json.NewDecoder(r.Body).Decode(&req)
		requested = append(requested, req.Symbol)
		if req.Symbol == "BRK.B" {
			json.NewEncoder(w).Encode(Result{Status: "failed", Error: "not found"})
			return
		}
		json.NewEncoder(w).Encode(Result{Symbol: "BRK.B", ScreenerSymbol: req.Symbol, Status: "success"})
	}))
	defer srv.Close()

	resolver := &stubResolver{slug: "BRK-B"}
	pipe := NewPipeline(NewClient(srv.URL, 0), resolver, 0)
	res := runOne(t, pipe, "BRK.B")

	if res.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1; outcome err: %v", res.Succeeded, res.Outcomes[0].Err)
	}
	if len(requested) != 2 || requested[0] != "BRK.B" || requested[1] != "BRK-B" {
		t.Errorf("scrape sequence = %v, want [BRK.B BRK-B]", requested)
	}
	if atomic.LoadInt32(&resolver.calls) != 1 {
		t.Errorf("resolver calls = %d, want 1", resolver.calls)
	}
}

func TestPipelineFallbackRetriesOnlyOnce(t *testing.T) {
	var scrapes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&scrapes, 1)
		json.NewEncoder(w).Encode(Result{Status: "failed", Error: "not found"})
	}))
	defer srv.Close()

	resolver := &stubResolver{slug: "still-wrong"}
	pipe := NewPipeline(NewClient(srv.URL, 0), resolver, 0)
	res := runOne(t, pipe, "XXXX")

	if res.Failed != 1 {
		t.Fatalf("failed = %d, want 1", res.Failed)
	}
	if got := atomic.LoadInt32(&scrapes); got != 2 {
		t.Errorf("scrape calls = %d, want exactly 2 (original + one retry)", got)
	}
}

func TestPipelineResolverFailureFailsItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{Status: "failed", Error: "not found"})
	}))
	defer srv.Close()

	resolver := &stubResolver{err: errors.New("ai backend down")}
	pipe := NewPipeline(NewClient(srv.URL, 0), resolver, 0)
	res := runOne(t, pipe, "XXXX")

	if res.Failed != 1 {
		t.Fatalf("failed = %d, want 1", res.Failed)
	}
	if res.Outcomes[0].FailedStage != "slug-fallback" {
		t.Errorf("failed stage = %q, want slug-fallback", res.Outcomes[0].FailedStage)
	}
}

func TestPipelineNonNotFoundErrorSkipsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	resolver := &stubResolver{}
	pipe := NewPipeline(NewClient(srv.URL, 0), resolver, 0)
	res := runOne(t, pipe, "AAPL")

	if res.Failed != 1 {
		t.Fatalf("failed = %d, want 1", res.Failed)
	}
	if atomic.LoadInt32(&resolver.calls) != 0 {
		t.Errorf("resolver calls = %d, want 0 for a non-404 failure", resolver.calls)
	}
}
