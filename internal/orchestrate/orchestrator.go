// Package orchestrate wires the catalog, the per-symbol pipelines, the
// sequential runner, the report store and notifications into the batch
// operations the CLI, the web API and the cron scheduler all share.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/equityscope/research-orchestrator/internal/catalog"
	"github.com/equityscope/research-orchestrator/internal/config"
	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/notify"
	"github.com/equityscope/research-orchestrator/internal/reportstore"
	"github.com/equityscope/research-orchestrator/internal/research"
	"github.com/equityscope/research-orchestrator/internal/runner"
	"github.com/equityscope/research-orchestrator/internal/scrape"
)

// ErrRunInProgress is returned when a batch is requested while another is
// still running on this orchestrator
var ErrRunInProgress = errors.New("a batch run is already in progress")

// Options adjusts a single batch run
type Options struct {
	// Symbols overrides the catalog with an explicit list
	Symbols []string
	// Force asks the scrape backend to bypass its cache
	Force bool
	// StaleOnly restricts a generate run to symbols with missing or
	// outdated reports
	StaleOnly bool
	// Observers receive progress snapshots in addition to the tracker
	Observers []runner.ProgressFunc
}

// Orchestrator runs scrape and generate batches. One batch at a time per
// orchestrator; separate orchestrators are fully independent.
type Orchestrator struct {
	cfg      *config.Config
	store    *reportstore.Store
	catalog  *catalog.Client
	scraper  *scrape.Client
	research *research.Client
	notifier notify.Notifier

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	tracker   *runner.Tracker
	watchlist *catalog.Watchlist
}

// New creates an Orchestrator from configuration
func New(cfg *config.Config, store *reportstore.Store, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	timeout := cfg.Backends.StageTimeout()
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		catalog:   catalog.NewClient(cfg.Backends.ScraperURL, timeout),
		scraper:   scrape.NewClient(cfg.Backends.ScraperURL, timeout),
		research:  research.NewClient(cfg.Backends.ResearchURL, timeout),
		notifier:  notifier,
		tracker:   runner.NewTracker(),
		watchlist: &catalog.Watchlist{},
	}
}

// SetWatchlist swaps the active watchlist (hot reload)
func (o *Orchestrator) SetWatchlist(wl *catalog.Watchlist) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.watchlist = wl
}

// Tracker returns the progress tracker observing the current (or last) run
func (o *Orchestrator) Tracker() *runner.Tracker {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tracker
}

// Busy reports whether a batch run is in flight
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Cancel requests cooperative cancellation of the in-flight run. The
// current item finishes naturally; no further item starts.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

// begin claims the single run slot and installs a fresh tracker and cancel
// function for this run
func (o *Orchestrator) begin(ctx context.Context) (context.Context, *runner.Tracker, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil, nil, ErrRunInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	tracker := runner.NewTracker()
	o.running = true
	o.cancel = cancel
	o.tracker = tracker
	return ctx, tracker, nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	o.cancel = nil
}

// buildItems assembles the work list for a run: explicit symbols when
// given, otherwise the backend catalog combined with the watchlist. A
// catalog fetch failure is batch-fatal: it aborts the run before any item
// is processed.
func (o *Orchestrator) buildItems(ctx context.Context, opts Options) ([]domain.WorkItem, error) {
	symbols := opts.Symbols
	if len(symbols) == 0 {
		fetched, err := o.catalog.Symbols(ctx)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		wl := o.watchlist
		o.mu.Unlock()
		symbols = wl.Apply(fetched)
	}

	items := catalog.Items(symbols, opts.Force)
	if o.cfg.General.Shuffle {
		catalog.Shuffle(items)
	}
	return items, nil
}

func (o *Orchestrator) pacer() runner.Pacer {
	return runner.Pacer{
		Min: o.cfg.Pacing.MinDelay(),
		Max: o.cfg.Pacing.MaxDelay(),
	}
}

// attachObservers wires the standard observers (tracker, persisted run
// history) plus any caller-supplied ones into a runner
func attachObservers[C any](run *runner.Runner[domain.WorkItem, C], fns ...runner.ProgressFunc) {
	for _, f := range fns {
		if f != nil {
			run.OnProgress(f)
		}
	}
}

// RunScrape runs a scrape batch over the catalog (or opts.Symbols) and
// returns its terminal result. Only a batch-fatal work-list failure
// returns an error.
func (o *Orchestrator) RunScrape(ctx context.Context, opts Options) (*runner.Result[domain.WorkItem], error) {
	ctx, tracker, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer o.end()
	return o.runScrape(ctx, tracker, opts)
}

// runScrape is the scrape body once the run slot is held
func (o *Orchestrator) runScrape(ctx context.Context, tracker *runner.Tracker, opts Options) (*runner.Result[domain.WorkItem], error) {
	items, err := o.buildItems(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("building work list: %w", err)
	}

	pipe := scrape.NewPipeline(o.scraper, o.research, o.cfg.Backends.StageTimeout())
	run := runner.New(runner.Config{Kind: domain.BatchScrape, Pacer: o.pacer()}, pipe, nil)
	attachObservers(run, append([]runner.ProgressFunc{tracker.Observe, o.persistRun()}, opts.Observers...)...)

	res := run.Run(ctx, items, o.scrapeSink())
	o.finish(res)
	return res, nil
}

// RunGenerate runs a report-generation batch. With StaleOnly set the work
// list comes from the store's stale-symbol query instead of the catalog.
func (o *Orchestrator) RunGenerate(ctx context.Context, opts Options) (*runner.Result[domain.WorkItem], error) {
	ctx, tracker, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer o.end()
	return o.runGenerate(ctx, tracker, opts)
}

// runGenerate is the generate body once the run slot is held
func (o *Orchestrator) runGenerate(ctx context.Context, tracker *runner.Tracker, opts Options) (*runner.Result[domain.WorkItem], error) {
	var items []domain.WorkItem
	var err error
	if opts.StaleOnly && len(opts.Symbols) == 0 {
		stale, serr := o.store.StaleSymbols(o.cfg.General.ReportMaxAge())
		if serr != nil {
			return nil, fmt.Errorf("building work list: %w", serr)
		}
		items = catalog.Items(stale, false)
		if o.cfg.General.Shuffle {
			catalog.Shuffle(items)
		}
	} else {
		items, err = o.buildItems(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("building work list: %w", err)
		}
	}

	pipe := research.NewPipeline(o.research, o.cfg.Backends.StageTimeout())
	run := runner.New(runner.Config{Kind: domain.BatchGenerate, Pacer: o.pacer()}, pipe, nil)
	attachObservers(run, append([]runner.ProgressFunc{tracker.Observe, o.persistRun()}, opts.Observers...)...)

	res := run.Run(ctx, items, o.reportSink())
	o.finish(res)
	return res, nil
}

// Start launches a batch asynchronously (for the web API). The run slot
// is claimed before Start returns, so a second Start racing the first
// gets ErrRunInProgress rather than a second goroutine. The run is
// stopped through Cancel, not through the caller's context.
func (o *Orchestrator) Start(kind domain.BatchKind, opts Options) error {
	ctx, tracker, err := o.begin(context.Background())
	if err != nil {
		return err
	}

	go func() {
		defer o.end()
		var err error
		switch kind {
		case domain.BatchGenerate:
			_, err = o.runGenerate(ctx, tracker, opts)
		default:
			_, err = o.runScrape(ctx, tracker, opts)
		}
		if err != nil {
			o.notifier.Send(notify.Notification{
				Title:   "Batch failed to start",
				Message: err.Error(),
				Type:    notify.NotifyError,
			})
		}
	}()
	return nil
}

// persistRun returns an observer that inserts the batch history row on the
// first snapshot and appends each new log line as the run progresses
func (o *Orchestrator) persistRun() runner.ProgressFunc {
	var started bool
	var last runner.LogLine
	return func(s runner.Snapshot) {
		if !started {
			started = true
			_ = o.store.SaveBatch(&domain.BatchRecord{
				ID:        s.RunID,
				Kind:      s.Kind,
				State:     s.State,
				Total:     s.Total,
				StartedAt: s.StartedAt,
			})
		}
		if !s.LastLine.Time.IsZero() && s.LastLine != last {
			last = s.LastLine
			_ = o.store.AppendLog(s.RunID, s.LastLine.Time, s.LastLine.Level, s.LastLine.Message)
		}
	}
}

// finish updates the batch history row with terminal counters and sends
// the completion notification
func (o *Orchestrator) finish(res *runner.Result[domain.WorkItem]) {
	finishedAt := res.FinishedAt
	_ = o.store.SaveBatch(&domain.BatchRecord{
		ID:         res.RunID,
		Kind:       res.Kind,
		State:      res.State,
		Total:      res.Total,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		Degraded:   res.Degraded,
		StartedAt:  res.StartedAt,
		FinishedAt: &finishedAt,
	})

	level := notify.NotifySuccess
	switch {
	case res.Cancelled():
		level = notify.NotifyInfo
	case res.Failed > 0:
		level = notify.NotifyWarning
	}
	o.notifier.Send(notify.Notification{
		Title: fmt.Sprintf("Batch %s %s", res.Kind, res.State),
		Message: fmt.Sprintf("%d/%d processed, %d succeeded, %d failed, %d degraded",
			res.Processed(), res.Total, res.Succeeded, res.Failed, res.Degraded),
		Type:  level,
		RunID: res.RunID,
	})
}
