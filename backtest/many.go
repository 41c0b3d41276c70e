package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// EngineFactory builds a fresh engine for one request.
type EngineFactory func(req Request) *Engine

// RunMany runs independent backtests concurrently, at most limit at a time
// (limit <= 0 means no limit). Results come back in request order. The
// first failure cancels the remaining runs.
func RunMany(ctx context.Context, reqs []Request, newEngine EngineFactory, limit int) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			e := newEngine(req)
			if err := e.Initialize(gctx, req); err != nil {
				return fmt.Errorf("%s/%s: %w", req.Symbol, req.Strategy.Name, err)
			}
			res, err := e.Run(gctx)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", req.Symbol, req.Strategy.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
