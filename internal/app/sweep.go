package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunStaleClaimSweeper periodically releases backfill claims abandoned by
// a worker that crashed between claiming a channel and recording its
// outcome. Runs until ctx is cancelled.
func (a *App) RunStaleClaimSweeper(ctx context.Context) error {
	interval := time.Duration(a.Config.StaleClaimSweepMs) * time.Millisecond
	olderThan := time.Duration(a.Config.StaleClaimMinutes) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := a.Store.SweepStaleClaims(ctx, olderThan)
			if err != nil {
				a.Logger.Error("stale claim sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.Logger.Info("released stale backfill claims", zap.Int("count", n))
			}
		}
	}
}
