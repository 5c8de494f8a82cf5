package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/finch-systems/msgindex/internal/models"
)

// SeedBackfill insert-only registers a channel for backfill. A duplicate
// channel_id means the channel was already seeded (e.g. a prior run, or a
// guild re-scan) — silently succeeds.
func (s *Store) SeedBackfill(ctx context.Context, channelID, guildID string) error {
	now := time.Now().UTC()
	_, err := s.backfill.InsertOne(ctx, &models.BackfillState{
		ChannelID: channelID,
		GuildID:   guildID,
		Done:      false,
		Claimed:   false,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return fmt.Errorf("seed backfill: %w", err)
}

// ClaimNextChannel atomically picks one unclaimed, unfinished channel
// (oldest updated_at first) and marks it claimed. Returns (nil, nil) when
// no candidate exists — callers should back off and retry.
func (s *Store) ClaimNextChannel(ctx context.Context) (*models.BackfillState, error) {
	filter := bsonM{
		"done":    false,
		"claimed": bsonM{"$ne": true},
	}
	update := bsonM{
		"$set": bsonM{
			"claimed":    true,
			"updated_at": time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bsonM{"updated_at": 1}).
		SetReturnDocument(options.After)

	var claim models.BackfillState
	err := s.backfill.FindOneAndUpdate(ctx, filter, update, opts).Decode(&claim)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next channel: %w", err)
	}
	return &claim, nil
}

// UpdateChannelState releases a channel's claim and records the outcome of
// the page that was just processed: the new cursor, whether the channel is
// now fully backfilled, and whether to bump error_count. error_count is
// monotonic and informational only — it never gates retry.
func (s *Store) UpdateChannelState(ctx context.Context, channelID string, cursorBefore string, done bool, errorDelta int) error {
	set := bsonM{
		"cursor_before": cursorBefore,
		"done":          done,
		"claimed":       false,
		"updated_at":    time.Now().UTC(),
	}
	update := bsonM{"$set": set}
	if errorDelta > 0 {
		update["$inc"] = bsonM{"error_count": errorDelta}
	}
	_, err := s.backfill.UpdateOne(ctx, bsonM{"channel_id": channelID}, update)
	if err != nil {
		return fmt.Errorf("update channel state: %w", err)
	}
	return nil
}

// SweepStaleClaims recovers channels left claimed=true by a worker that
// crashed between ClaimNextChannel and UpdateChannelState. It does not
// touch cursor_before or done — only the stuck lease is released.
func (s *Store) SweepStaleClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.backfill.UpdateMany(ctx,
		bsonM{"claimed": true, "updated_at": bsonM{"$lt": cutoff}},
		bsonM{"$set": bsonM{"claimed": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("sweep stale claims: %w", err)
	}
	return int(res.ModifiedCount), nil
}
