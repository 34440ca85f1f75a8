// Package api exposes the orchestrator over HTTP: report and batch-history
// queries, run control, and live progress over SSE and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/orchestrate"
	"github.com/equityscope/research-orchestrator/internal/runner"
)

// Store interface for database operations
type Store interface {
	ListReports() ([]*domain.Report, error)
	GetReport(symbol string) (*domain.Report, error)
	ListBatches(limit int) ([]*domain.BatchRecord, error)
	BatchLogs(runID string, limit int) ([]*domain.LogEntry, error)
}

// Server is the HTTP API server
type Server struct {
	store  Store
	orch   *orchestrate.Orchestrator
	addr   string
	mux    *http.ServeMux
	sseHub *SSEHub
}

// NewServer creates a new API server
func NewServer(store Store, orch *orchestrate.Orchestrator, addr string) *Server {
	s := &Server{
		store:  store,
		orch:   orch,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API routes
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/reports", s.listReportsHandler())
	s.mux.HandleFunc("/api/reports/", s.getReportHandler())
	s.mux.HandleFunc("/api/batches", s.listBatchesHandler())
	s.mux.HandleFunc("/api/batches/", s.batchLogsHandler())
	s.mux.HandleFunc("/api/runs/scrape", s.startRunHandler(domain.BatchScrape))
	s.mux.HandleFunc("/api/runs/generate", s.startRunHandler(domain.BatchGenerate))
	s.mux.HandleFunc("/api/runs/cancel", s.cancelRunHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/runs/live", s.liveLogHandler())
}

// Start runs the HTTP server and the event hub until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.sseHub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Broadcast sends an event to all connected SSE and WebSocket clients
func (s *Server) Broadcast(event Event) {
	s.sseHub.Broadcast(event)
}

// ProgressObserver returns a runner observer that broadcasts every progress
// snapshot. Pass it in the run options when starting a batch.
func (s *Server) ProgressObserver() runner.ProgressFunc {
	return func(snap runner.Snapshot) {
		s.Broadcast(Event{Type: "run_progress", Data: snap})
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
