package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/runner"
)

// stubBackend answers all three stage endpoints, with per-path failure hooks
type stubBackend struct {
	t        *testing.T
	failPath map[string]bool
	calls    []string
	bodies   map[string]map[string]any
}

func newStubBackend(t *testing.T) *stubBackend {
	return &stubBackend{
		t:        t,
		failPath: make(map[string]bool),
		bodies:   make(map[string]map[string]any),
	}
}

func (s *stubBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls = append(s.calls, r.URL.Path)

	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	s.bodies[r.URL.Path] = body

	if s.failPath[r.URL.Path] {
		http.Error(w, "backend failure", http.StatusBadGateway)
		return
	}

	switch r.URL.Path {
	case "/research":
		w.Write([]byte(`{"summary": "company research"}`))
	case "/financial-metrics":
		w.Write([]byte(`{"pe": 30.5}`))
	case "/structure-sections":
		w.Write([]byte(`{"sections": ["overview", "valuation"]}`))
	case "/resolve-slug":
		w.Write([]byte(`{"slug": "apple-inc"}`))
	default:
		s.t.Errorf("unexpected path %q", r.URL.Path)
		http.NotFound(w, r)
	}
}

func runReport(t *testing.T, client *Client) (*runner.Result[domain.WorkItem], *Context) {
	t.Helper()
	var captured *Context
	sink := runner.SinkFunc[domain.WorkItem, Context](func(_ context.Context, _ string, _ runner.Outcome[domain.WorkItem], c *Context) error {
		captured = c
		return nil
	})
	r := runner.New(runner.Config{Kind: domain.BatchGenerate}, NewPipeline(client, 0), nil)
	res := r.Run(context.Background(), []domain.WorkItem{{Symbol: "AAPL"}}, sink)
	return res, captured
}

func TestPipelineAllStages(t *testing.T) {
	backend := newStubBackend(t)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	res, c := runReport(t, NewClient(srv.URL, 0))

	if res.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1; err: %v", res.Succeeded, res.Outcomes[0].Err)
	}
	wantCalls := []string{"/research", "/financial-metrics", "/structure-sections"}
	if len(backend.calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", backend.calls, wantCalls)
	}
	for i := range wantCalls {
		if backend.calls[i] != wantCalls[i] {
			t.Errorf("call[%d] = %q, want %q", i, backend.calls[i], wantCalls[i])
		}
	}
	if c == nil || len(c.Sections) == 0 {
		t.Fatal("sink did not receive the combined payload")
	}

	// sections request must carry the prior stages' payloads
	sectionsBody := backend.bodies["/structure-sections"]
	if sectionsBody["research"] == nil {
		t.Error("sections request missing research payload")
	}
	if sectionsBody["metrics"] == nil {
		t.Error("sections request missing metrics payload")
	}
}

func TestPipelineMetricsDegradation(t *testing.T) {
	backend := newStubBackend(t)
	backend.failPath["/financial-metrics"] = true
	srv := httptest.NewServer(backend)
	defer srv.Close()

	res, c := runReport(t, NewClient(srv.URL, 0))

	if res.Succeeded != 1 {
		t.Fatalf("metrics failure must not fail the item; err: %v", res.Outcomes[0].Err)
	}
	if res.Degraded != 1 {
		t.Errorf("degraded = %d, want 1", res.Degraded)
	}
	if res.Failed != 0 {
		t.Errorf("failed = %d, want 0", res.Failed)
	}

	// sections still ran, with an explicit null metrics field
	sectionsBody, ok := backend.bodies["/structure-sections"]
	if !ok {
		t.Fatal("sections stage did not run after metrics degraded")
	}
	if sectionsBody["metrics"] != nil {
		t.Errorf("metrics field = %v, want null", sectionsBody["metrics"])
	}
	if len(c.Metrics) != 0 {
		t.Errorf("context metrics = %s, want absent", c.Metrics)
	}
}

func TestPipelineResearchFailureAborts(t *testing.T) {
	backend := newStubBackend(t)
	backend.failPath["/research"] = true
	srv := httptest.NewServer(backend)
	defer srv.Close()

	res, _ := runReport(t, NewClient(srv.URL, 0))

	if res.Failed != 1 {
		t.Fatalf("failed = %d, want 1", res.Failed)
	}
	if len(backend.calls) != 1 {
		t.Errorf("calls = %v, later stages must not run after a critical failure", backend.calls)
	}
	if res.Outcomes[0].FailedStage != "research" {
		t.Errorf("failed stage = %q, want research", res.Outcomes[0].FailedStage)
	}
}

func TestClientResolveSlug(t *testing.T) {
	backend := newStubBackend(t)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	slug, err := NewClient(srv.URL, 0).ResolveSlug(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if slug != "apple-inc" {
		t.Errorf("slug = %q, want apple-inc", slug)
	}
}

func TestClientResolveSlugEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"slug": ""}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, 0).ResolveSlug(context.Background(), "AAPL"); err == nil {
		t.Fatal("empty slug should be an error")
	}
}
