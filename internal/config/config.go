// Package config loads the indexer's runtime configuration from environment
// variables. There is no config file: environment variables are the sole
// configuration surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DiscordBotToken string
	DiscordAPIBase  string
	DiscordGateway  string
	DiscordGuildIDs []string
	DiscordIntents  int

	MongoURI string
	MongoDB  string

	BackfillPageSize       int
	BackfillWorkers        int
	BackfillRequestDelayMs int

	HTTPTimeoutMs      int
	StaleClaimMinutes  int
	StaleClaimSweepMs  int
	HealthAddr         string
	RateLimitRedisAddr string

	LogLevel string
	LogEnv   string
}

// Load reads and validates the environment. Missing required variables are
// fatal at startup, before any connection is opened.
func Load() (*Config, error) {
	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("config: DISCORD_BOT_TOKEN is required")
	}

	intents, err := parseIntEnv("DISCORD_INTENTS", 4609)
	if err != nil {
		return nil, err
	}
	pageSize, err := parseIntEnv("INDEXER_BACKFILL_PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	pageSize = clamp(pageSize, 1, 100)
	workers, err := parseIntEnv("INDEXER_BACKFILL_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	requestDelay, err := parseIntEnv("INDEXER_BACKFILL_REQUEST_DELAY_MS", 500)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := parseIntEnv("INDEXER_HTTP_TIMEOUT_MS", 30000)
	if err != nil {
		return nil, err
	}
	staleMinutes, err := parseIntEnv("INDEXER_STALE_CLAIM_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	sweepMs, err := parseIntEnv("INDEXER_STALE_CLAIM_SWEEP_INTERVAL_MS", 60000)
	if err != nil {
		return nil, err
	}

	return &Config{
		DiscordBotToken:        token,
		DiscordAPIBase:         GetEnv("DISCORD_API_BASE", "https://discord.com/api/v10"),
		DiscordGateway:         GetEnv("DISCORD_GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json"),
		DiscordGuildIDs:        splitCSV(os.Getenv("DISCORD_GUILD_IDS")),
		DiscordIntents:         intents,
		MongoURI:               GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:                GetEnv("MONGODB_DB", "discord_index"),
		BackfillPageSize:       pageSize,
		BackfillWorkers:        workers,
		BackfillRequestDelayMs: requestDelay,
		HTTPTimeoutMs:          httpTimeout,
		StaleClaimMinutes:      staleMinutes,
		StaleClaimSweepMs:      sweepMs,
		HealthAddr:             GetEnv("INDEXER_HEALTH_ADDR", ":8091"),
		RateLimitRedisAddr:     os.Getenv("RATE_LIMIT_REDIS_ADDR"),
		LogLevel:               GetEnv("LOG_LEVEL", "info"),
		LogEnv:                 GetEnv("LOG_ENV", "development"),
	}, nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return v, nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
