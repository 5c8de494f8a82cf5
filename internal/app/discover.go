package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/finch-systems/msgindex/internal/discordapi"
)

// SeedGuilds resolves which guilds to index — either the operator's
// explicit DISCORD_GUILD_IDS list, or every guild the bot account belongs
// to, discovered by paging /users/@me/guilds until a short page — then
// enumerates each guild's text/announcement channels and registers them
// for backfill. Already-seeded channels are untouched: SeedBackfill is
// insert-only.
func (a *App) SeedGuilds(ctx context.Context) error {
	guildIDs := a.Config.DiscordGuildIDs
	if len(guildIDs) == 0 {
		discovered, err := a.discoverGuilds(ctx)
		if err != nil {
			return fmt.Errorf("discover guilds: %w", err)
		}
		guildIDs = discovered
	}

	for _, guildID := range guildIDs {
		channels, err := a.API.ListChannels(ctx, guildID)
		if err != nil {
			a.Logger.Error("list channels failed, skipping guild", zap.String("guild_id", guildID), zap.Error(err))
			continue
		}
		for _, ch := range channels {
			if ch.Type != discordapi.ChannelTypeText && ch.Type != discordapi.ChannelTypeAnnouncement {
				continue
			}
			if err := a.Store.SeedBackfill(ctx, ch.ID, guildID); err != nil {
				a.Logger.Error("seed backfill failed", zap.String("channel_id", ch.ID), zap.Error(err))
			}
		}
	}
	return nil
}

const guildPageLimit = 200

func (a *App) discoverGuilds(ctx context.Context) ([]string, error) {
	var ids []string
	after := ""
	for {
		page, err := a.API.ListGuildsPage(ctx, after)
		if err != nil {
			return nil, err
		}
		for _, g := range page {
			ids = append(ids, g.ID)
		}
		if len(page) < guildPageLimit {
			return ids, nil
		}
		after = page[len(page)-1].ID
	}
}
