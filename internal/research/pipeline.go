package research

import (
	"context"
	"encoding/json"
	"time"

	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/runner"
)

// Context accumulates the stage payloads for one symbol's report. Later
// stages read earlier fields but never rewrite them.
type Context struct {
	Research json.RawMessage
	Metrics  json.RawMessage
	Sections json.RawMessage
}

// NewPipeline builds the report pipeline. The metrics stage is best-effort:
// when it fails the sections stage still runs, receives a null metrics
// field, and the report is marked degraded rather than failed.
func NewPipeline(client *Client, stageTimeout time.Duration) runner.Pipeline[domain.WorkItem, Context] {
	return runner.Pipeline[domain.WorkItem, Context]{
		Name: "generate",
		Stages: []runner.Stage[domain.WorkItem, Context]{
			{
				Name:    "research",
				Timeout: stageTimeout,
				Run: func(ctx context.Context, item domain.WorkItem, c *Context) error {
					out, err := client.Research(ctx, item.Symbol)
					if err != nil {
						return err
					}
					c.Research = out
					return nil
				},
			},
			{
				Name:       "metrics",
				BestEffort: true,
				Timeout:    stageTimeout,
				Run: func(ctx context.Context, item domain.WorkItem, c *Context) error {
					out, err := client.Metrics(ctx, item.Symbol, c.Research)
					if err != nil {
						return err
					}
					c.Metrics = out
					return nil
				},
			},
			{
				Name:    "sections",
				Timeout: stageTimeout,
				Run: func(ctx context.Context, item domain.WorkItem, c *Context) error {
					out, err := client.Sections(ctx, item.Symbol, c.Research, c.Metrics)
					if err != nil {
						return err
					}
					c.Sections = out
					return nil
				},
			},
		},
	}
}
