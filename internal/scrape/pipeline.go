package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/runner"
)

// SlugResolver looks up the screener's identifier for a symbol the plain
// ticker did not match. Implemented by the research backend client.
type SlugResolver interface {
	ResolveSlug(ctx context.Context, symbol string) (string, error)
}

// Context is the accumulated state for one symbol's scrape pipeline
type Context struct {
	// Result is set by whichever scrape attempt succeeded
	Result *Result
	// Slug is the corrected identifier from the fallback lookup
	Slug string

	notFound bool
}

// NewPipeline builds the scrape pipeline: scrape under the plain ticker;
// when the screener reports not-found, resolve the slug through the AI
// backend and retry the scrape exactly once with the corrected identifier.
// The fallback stage is a no-op for symbols the first attempt satisfied.
func NewPipeline(client *Client, resolver SlugResolver, stageTimeout time.Duration) runner.Pipeline[domain.WorkItem, Context] {
	return runner.Pipeline[domain.WorkItem, Context]{
		Name: "scrape",
		Stages: []runner.Stage[domain.WorkItem, Context]{
			{
				Name:    "scrape",
				Timeout: stageTimeout,
				Run: func(ctx context.Context, item domain.WorkItem, c *Context) error {
					res, err := client.Scrape(ctx, item.Symbol, item.Force)
					if errors.Is(err, ErrNotFound) {
						// absorbed here: the fallback stage takes over
						c.notFound = true
						return nil
					}
					if err != nil {
						return err
					}
					c.Result = res
					return nil
				},
			},
			{
				Name:    "slug-fallback",
				Timeout: stageTimeout,
				Run: func(ctx context.Context, item domain.WorkItem, c *Context) error {
					if !c.notFound {
						return nil
					}

					slug, err := resolver.ResolveSlug(ctx, item.Symbol)
					if err != nil {
						return fmt.Errorf("resolving slug for %s: %w", item.Symbol, err)
					}
					c.Slug = slug

					res, err := client.Scrape(ctx, slug, item.Force)
					if err != nil {
						return fmt.Errorf("retry with slug %q: %w", slug, err)
					}
					c.Result = res
					return nil
				},
			},
		},
	}
}
