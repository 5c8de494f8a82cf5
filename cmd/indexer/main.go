// Command indexer runs the chat-platform message indexer: it backfills
// historical messages channel-by-channel and ingests new ones live over
// the gateway, writing both into one document store.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/finch-systems/msgindex/internal/app"
	"github.com/finch-systems/msgindex/internal/config"
	"github.com/finch-systems/msgindex/internal/health"
	"github.com/finch-systems/msgindex/internal/observ"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := observ.NewLogger(cfg.LogEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init app", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("close app", zap.Error(err))
		}
	}()

	if err := a.SeedGuilds(ctx); err != nil {
		logger.Error("seed guilds", zap.Error(err))
	}

	healthServer := health.NewServer(a.Store, a.Health)
	healthServer.Addr = cfg.HealthAddr

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Scheduler.Run(gctx, cfg.BackfillWorkers)
	})

	g.Go(func() error {
		return a.Gateway.Run(gctx)
	})

	g.Go(func() error {
		return a.RunStaleClaimSweeper(gctx)
	})

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- healthServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return healthServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("indexer exited with error", zap.Error(err))
	}

	logger.Info("indexer shut down")
}
