package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/orchestrate"
	"github.com/equityscope/research-orchestrator/internal/runner"
)

// ReportSummary is the API response for one report in a listing
type ReportSummary struct {
	Symbol    string `json:"symbol"`
	Version   string `json:"version"`
	Degraded  bool   `json:"degraded"`
	UpdatedAt string `json:"updated_at"`
}

// ReportResponse is the full API response for a single report
type ReportResponse struct {
	ReportSummary
	Research json.RawMessage `json:"research,omitempty"`
	Metrics  json.RawMessage `json:"metrics,omitempty"`
	Sections json.RawMessage `json:"sections,omitempty"`
}

// BatchResponse is the API response for one batch-history row
type BatchResponse struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	State      string  `json:"state"`
	Total      int     `json:"total"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	Degraded   int     `json:"degraded"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

// StatusResponse is the API response for overall orchestrator status
type StatusResponse struct {
	Running bool            `json:"running"`
	Run     runner.Snapshot `json:"run"`
}

// RunRequest is the POST body for starting a batch
type RunRequest struct {
	Symbols   []string `json:"symbols,omitempty"`
	Force     bool     `json:"force,omitempty"`
	StaleOnly bool     `json:"stale_only,omitempty"`
}

func reportSummary(r *domain.Report) ReportSummary {
	return ReportSummary{
		Symbol:    r.Symbol,
		Version:   r.Version,
		Degraded:  r.Degraded,
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
}

func batchToResponse(b *domain.BatchRecord) BatchResponse {
	resp := BatchResponse{
		ID:        b.ID,
		Kind:      string(b.Kind),
		State:     string(b.State),
		Total:     b.Total,
		Succeeded: b.Succeeded,
		Failed:    b.Failed,
		Degraded:  b.Degraded,
		StartedAt: b.StartedAt.Format(time.RFC3339),
	}
	if b.FinishedAt != nil {
		t := b.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		writeJSON(w, StatusResponse{
			Running: s.orch.Busy(),
			Run:     s.orch.Tracker().Snapshot(),
		})
	}
}

func (s *Server) listReportsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		reports, err := s.store.ListReports()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]ReportSummary, len(reports))
		for i, rep := range reports {
			responses[i] = reportSummary(rep)
		}

		writeJSON(w, responses)
	}
}

func (s *Server) getReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// Path: /api/reports/{symbol}
		symbol := strings.TrimPrefix(r.URL.Path, "/api/reports/")
		symbol, err := domain.ParseSymbol(symbol)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rep, err := s.store.GetReport(symbol)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rep == nil {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}

		writeJSON(w, ReportResponse{
			ReportSummary: reportSummary(rep),
			Research:      json.RawMessage(rep.Research),
			Metrics:       json.RawMessage(rep.Metrics),
			Sections:      json.RawMessage(rep.Sections),
		})
	}
}

func (s *Server) listBatchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		batches, err := s.store.ListBatches(50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]BatchResponse, len(batches))
		for i, b := range batches {
			responses[i] = batchToResponse(b)
		}

		writeJSON(w, responses)
	}
}

func (s *Server) batchLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// Path: /api/batches/{id}/logs
		path := strings.TrimPrefix(r.URL.Path, "/api/batches/")
		runID := strings.TrimSuffix(path, "/logs")
		runID = strings.TrimSuffix(runID, "/")
		if runID == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		logs, err := s.store.BatchLogs(runID, 500)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		lines := make([]map[string]string, len(logs))
		for i, l := range logs {
			lines[i] = map[string]string{
				"time":    l.Timestamp.Format(time.RFC3339),
				"level":   string(l.Level),
				"message": l.Message,
			}
		}

		writeJSON(w, map[string]interface{}{
			"run_id": runID,
			"lines":  lines,
		})
	}
}

func (s *Server) startRunHandler(kind domain.BatchKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req RunRequest
		if r.Body != nil {
			// Empty body runs the whole catalog
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		symbols := make([]string, 0, len(req.Symbols))
		for _, raw := range req.Symbols {
			sym, err := domain.ParseSymbol(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			symbols = append(symbols, sym)
		}

		opts := orchestrate.Options{
			Symbols:   symbols,
			Force:     req.Force,
			StaleOnly: req.StaleOnly,
			Observers: []runner.ProgressFunc{s.ProgressObserver()},
		}

		if err := s.orch.Start(kind, opts); err != nil {
			if errors.Is(err, orchestrate.ErrRunInProgress) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, map[string]string{"status": "started", "kind": string(kind)})
	}
}

func (s *Server) cancelRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if !s.orch.Cancel() {
			writeError(w, http.StatusConflict, "no run in progress")
			return
		}

		s.Broadcast(Event{Type: "run_cancelling", Data: s.orch.Tracker().Snapshot()})

		writeJSON(w, map[string]string{"status": "cancelling"})
	}
}
