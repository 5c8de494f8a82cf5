package backfill

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run starts the configured number of workers under a structured worker
// group and blocks until ctx is cancelled (graceful shutdown) or a worker
// returns an unrecoverable error. Transient per-channel errors are handled
// inside Worker and never escape it.
func (s *Scheduler) Run(ctx context.Context, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			return s.Worker(gctx, workerID)
		})
	}
	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
