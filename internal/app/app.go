// Package app wires the indexer's components behind one explicit context
// object, replacing the ambient-static-state pattern the teacher's own
// startup code used for its DB/client handles.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finch-systems/msgindex/internal/backfill"
	"github.com/finch-systems/msgindex/internal/config"
	"github.com/finch-systems/msgindex/internal/discordapi"
	"github.com/finch-systems/msgindex/internal/gateway"
	"github.com/finch-systems/msgindex/internal/health"
	"github.com/finch-systems/msgindex/internal/ratelimit"
	"github.com/finch-systems/msgindex/internal/store"
)

// App holds every shared dependency the supervisor wires together: the
// store connection, HTTP client, rate-limit coordinator, and structured
// logger. Nothing here is package-level global state.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Store       *store.Store
	Coordinator *ratelimit.Coordinator
	API         *discordapi.Client
	Scheduler   *backfill.Scheduler
	Gateway     *gateway.Supervisor
	Health      *health.Status
}

// New builds every component but does not start any background work —
// the caller (cmd/indexer) starts the scheduler, gateway supervisor and
// sweeper. Construction failures (bad config, unreachable store)
// are returned to the caller rather than calling log.Fatal deep inside a
// constructor.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	st, err := store.New(ctx, cfg.MongoURI, cfg.MongoDB, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	httpClient := discordapi.NewHTTPClient(cfg.DiscordBotToken, time.Duration(cfg.HTTPTimeoutMs)*time.Millisecond)
	coordinator := ratelimit.New(httpClient, logger, cfg.RateLimitRedisAddr)
	api := discordapi.NewClient(cfg.DiscordAPIBase, coordinator)

	scheduler := backfill.NewScheduler(api, st, logger, cfg.BackfillPageSize, cfg.BackfillRequestDelayMs)

	healthStatus := health.NewStatus()
	gatewaySupervisor := gateway.NewSupervisor(cfg.DiscordGateway, cfg.DiscordBotToken, cfg.DiscordIntents, st, logger, healthStatus)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       st,
		Coordinator: coordinator,
		API:         api,
		Scheduler:   scheduler,
		Gateway:     gatewaySupervisor,
		Health:      healthStatus,
	}, nil
}

func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}
