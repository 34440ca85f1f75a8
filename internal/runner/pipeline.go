// Package runner implements a sequential, cancellable batch runner: an
// ordered list of work items is processed one at a time through a staged
// pipeline, with randomized pacing between items, per-item failure isolation
// and live progress reporting. It is the single implementation behind the
// scrape, generate and scheduled batches.
package runner

import (
	"context"
	"fmt"
	"time"
)

// Identifiable is the constraint on work items: a stable identity used for
// logging, outcome ordering and sink deduplication.
type Identifiable interface {
	ID() string
}

// Stage is one step of a per-item pipeline. Run receives the item and the
// accumulated context C shared by all stages of that item; later stages may
// read what earlier stages wrote.
//
// A best-effort stage that fails degrades the item instead of failing it;
// later stages must tolerate the missing output.
type Stage[T Identifiable, C any] struct {
	Name       string
	BestEffort bool
	Timeout    time.Duration
	Run        func(ctx context.Context, item T, c *C) error
}

// Pipeline is an ordered list of stages executed strictly in definition
// order for each item.
type Pipeline[T Identifiable, C any] struct {
	Name   string
	Stages []Stage[T, C]
}

// Outcome aggregates the stage results for one item. Err is nil on success;
// Degraded lists best-effort stages that failed.
type Outcome[T Identifiable] struct {
	Item        T
	ItemID      string
	Err         error
	FailedStage string
	Degraded    []string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Success reports whether the item resolved without a critical-stage error
func (o Outcome[T]) Success() bool {
	return o.Err == nil
}

// IsDegraded reports whether any best-effort stage failed for this item
func (o Outcome[T]) IsDegraded() bool {
	return len(o.Degraded) > 0
}

// runStage executes a single stage with its timeout, converting panics into
// stage errors so a malformed response can never escape the stage boundary.
func runStage[T Identifiable, C any](ctx context.Context, st Stage[T, C], item T, c *C) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in stage %s: %v", st.Name, p)
		}
	}()

	if st.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.Timeout)
		defer cancel()
	}

	return st.Run(ctx, item, c)
}
