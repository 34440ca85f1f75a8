package orchestrate

import (
	"context"
	"time"

	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/research"
	"github.com/equityscope/research-orchestrator/internal/runner"
	"github.com/equityscope/research-orchestrator/internal/scrape"
)

// scrapeSink persists the symbol record of each successful scrape. Failed
// items are already captured in the outcome list and batch counters, so the
// sink ignores them.
func (o *Orchestrator) scrapeSink() runner.Sink[domain.WorkItem, scrape.Context] {
	return runner.SinkFunc[domain.WorkItem, scrape.Context](func(_ context.Context, _ string, oc runner.Outcome[domain.WorkItem], c *scrape.Context) error {
		if !oc.Success() || c == nil || c.Result == nil {
			return nil
		}
		rec := &domain.SymbolRecord{
			Symbol:         oc.Item.Symbol,
			ScreenerSymbol: c.Result.ScreenerSymbol,
		}
		if ts, err := time.Parse(time.RFC3339, c.Result.LastUpdated); err == nil {
			rec.LastUpdated = ts
		}
		return o.store.SaveSymbol(rec)
	})
}

// reportSink persists the combined report of each successful generate
// pipeline. The run ID doubles as the report version, so re-recording the
// same symbol within one run is a no-op at the store level too.
func (o *Orchestrator) reportSink() runner.Sink[domain.WorkItem, research.Context] {
	return runner.SinkFunc[domain.WorkItem, research.Context](func(_ context.Context, runID string, oc runner.Outcome[domain.WorkItem], c *research.Context) error {
		if !oc.Success() || c == nil {
			return nil
		}
		_, err := o.store.SaveReport(&domain.Report{
			Symbol:   oc.Item.Symbol,
			Version:  runID,
			Research: string(c.Research),
			Metrics:  string(c.Metrics),
			Sections: string(c.Sections),
			Degraded: oc.IsDegraded(),
		})
		return err
	})
}
