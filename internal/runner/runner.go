package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/google/uuid"
)

// Sink records item outcomes together with the accumulated stage context,
// the combined result object assembled once all stages for the item have
// resolved. Implementations must be idempotent per item within a run; the
// runner additionally skips duplicate item IDs as a defense, so Record sees
// each identity at most once per run. c is nil only when the item's context
// factory itself panicked.
type Sink[T Identifiable, C any] interface {
	Record(ctx context.Context, runID string, oc Outcome[T], c *C) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc[T Identifiable, C any] func(ctx context.Context, runID string, oc Outcome[T], c *C) error

func (f SinkFunc[T, C]) Record(ctx context.Context, runID string, oc Outcome[T], c *C) error {
	return f(ctx, runID, oc, c)
}

// Config parameterizes a Runner
type Config struct {
	Kind  domain.BatchKind
	Pacer Pacer
}

// Runner drives a Pipeline across an item list strictly one item at a time.
// Sequencing is deliberate: concurrent requests against the same scraping or
// AI endpoints invite rate limiting, so throughput is traded for reliability.
//
// A Runner holds configuration only; each Run builds fresh per-run state, so
// concurrent runs from separate Runners (or the same one) share nothing.
type Runner[T Identifiable, C any] struct {
	cfg        Config
	pipeline   Pipeline[T, C]
	newContext func(T) *C
	observers  []ProgressFunc
}

// New creates a Runner for the given pipeline. newContext builds the
// accumulated stage context for each item; nil means new(C).
func New[T Identifiable, C any](cfg Config, p Pipeline[T, C], newContext func(T) *C) *Runner[T, C] {
	if newContext == nil {
		newContext = func(T) *C { return new(C) }
	}
	return &Runner[T, C]{
		cfg:        cfg,
		pipeline:   p,
		newContext: newContext,
	}
}

// OnProgress registers an observer invoked synchronously after every state
// transition. Must be called before Run.
func (r *Runner[T, C]) OnProgress(f ProgressFunc) {
	r.observers = append(r.observers, f)
}

// Result is the terminal state of one run
type Result[T Identifiable] struct {
	RunID      string
	Kind       domain.BatchKind
	State      domain.RunState
	Total      int
	Outcomes   []Outcome[T]
	Succeeded  int
	Failed     int
	Degraded   int
	StartedAt  time.Time
	FinishedAt time.Time
	Log        []LogLine
}

// Processed returns the number of items that resolved before termination
func (r *Result[T]) Processed() int {
	return len(r.Outcomes)
}

// Cancelled reports whether the run was stopped before exhausting its items
func (r *Result[T]) Cancelled() bool {
	return r.State == domain.RunCancelled
}

// batchRun is the per-run mutable state. Single-writer: only the Run loop
// touches it; observers receive value copies.
type batchRun[T Identifiable, C any] struct {
	runner *Runner[T, C]
	snap   Snapshot
	result *Result[T]
}

func (b *batchRun[T, C]) logf(level domain.LogLevel, format string, args ...any) {
	line := LogLine{
		Time:    time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}
	b.result.Log = append(b.result.Log, line)
	b.snap.LastLine = line
	b.emit()
}

func (b *batchRun[T, C]) emit() {
	for _, f := range b.runner.observers {
		f(b.snap)
	}
}

// Run processes every item in order and returns the terminal run state. The
// item slice is snapshotted, so callers may mutate theirs afterwards.
// Cancellation is cooperative via ctx: the in-flight item finishes naturally,
// no further item starts, and the run reports cancelled rather than
// completed. Run never returns an error: individual failures are recorded in
// the result, and only the caller-supplied catalog can fail a batch outright.
func (r *Runner[T, C]) Run(ctx context.Context, items []T, sink Sink[T, C]) *Result[T] {
	items = append([]T(nil), items...)
	now := time.Now()

	b := &batchRun[T, C]{
		runner: r,
		result: &Result[T]{
			RunID:     uuid.NewString(),
			Kind:      r.cfg.Kind,
			State:     domain.RunRunning,
			Total:     len(items),
			StartedAt: now,
		},
	}
	b.snap = Snapshot{
		RunID:     b.result.RunID,
		Kind:      r.cfg.Kind,
		State:     domain.RunRunning,
		Total:     len(items),
		StartedAt: now,
	}
	b.logf(domain.LevelInfo, "run %s started: %d items", b.result.RunID, len(items))

	recorded := make(map[string]bool, len(items))
	cancelled := false

	for i, item := range items {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		b.snap.Current = item.ID()
		b.logf(domain.LevelInfo, "[%d/%d] %s: starting", i+1, len(items), item.ID())

		oc, itemCtx := b.processItem(ctx, item)

		b.result.Outcomes = append(b.result.Outcomes, oc)
		b.snap.Processed++
		if oc.Success() {
			b.result.Succeeded++
			b.snap.Succeeded++
			if oc.IsDegraded() {
				b.result.Degraded++
				b.snap.Degraded++
				b.logf(domain.LevelWarn, "[%d/%d] %s: done (degraded: %v)", i+1, len(items), oc.ItemID, oc.Degraded)
			} else {
				b.logf(domain.LevelInfo, "[%d/%d] %s: done", i+1, len(items), oc.ItemID)
			}
		} else {
			b.result.Failed++
			b.snap.Failed++
			b.logf(domain.LevelError, "[%d/%d] %s: failed: %v", i+1, len(items), oc.ItemID, oc.Err)
		}
		b.snap.Current = ""

		if sink != nil {
			if recorded[oc.ItemID] {
				b.logf(domain.LevelWarn, "%s: outcome already recorded, skipping", oc.ItemID)
			} else {
				recorded[oc.ItemID] = true
				if err := sink.Record(ctx, b.result.RunID, oc, itemCtx); err != nil {
					b.logf(domain.LevelError, "%s: recording outcome: %v", oc.ItemID, err)
				}
			}
		}

		if i == len(items)-1 {
			break
		}

		if d := r.cfg.Pacer.Sample(); d > 0 {
			b.logf(domain.LevelInfo, "pacing %s before next item", d.Round(time.Millisecond))
			if err := r.cfg.Pacer.Wait(ctx, d); err != nil {
				cancelled = true
				break
			}
		} else if ctx.Err() != nil {
			cancelled = true
			break
		}
	}

	if cancelled {
		b.result.State = domain.RunCancelled
	} else {
		b.result.State = domain.RunCompleted
	}
	b.result.FinishedAt = time.Now()
	b.snap.State = b.result.State
	b.snap.Current = ""
	b.logf(domain.LevelInfo, "run %s %s: %d/%d processed, %d succeeded, %d failed, %d degraded",
		b.result.RunID, b.result.State, b.snap.Processed, b.snap.Total,
		b.result.Succeeded, b.result.Failed, b.result.Degraded)

	return b.result
}

// processItem runs all stages for one item. Critical-stage errors abort the
// remaining stages for this item only; best-effort failures are logged and
// the pipeline continues with that output absent. Panics anywhere inside the
// item boundary become the item's failure, never the run's.
func (b *batchRun[T, C]) processItem(ctx context.Context, item T) (oc Outcome[T], c *C) {
	oc = Outcome[T]{
		Item:      item,
		ItemID:    item.ID(),
		StartedAt: time.Now(),
	}
	defer func() {
		if p := recover(); p != nil {
			oc.Err = fmt.Errorf("panic processing %s: %v", oc.ItemID, p)
		}
		oc.FinishedAt = time.Now()
	}()

	c = b.runner.newContext(item)
	for _, st := range b.runner.pipeline.Stages {
		if err := runStage(ctx, st, item, c); err != nil {
			if st.BestEffort {
				oc.Degraded = append(oc.Degraded, st.Name)
				b.logf(domain.LevelWarn, "%s: stage %s degraded: %v", oc.ItemID, st.Name, err)
				continue
			}
			oc.Err = fmt.Errorf("stage %s: %w", st.Name, err)
			oc.FailedStage = st.Name
			return oc, c
		}
		b.logf(domain.LevelInfo, "%s: stage %s ok", oc.ItemID, st.Name)
	}
	return oc, c
}
