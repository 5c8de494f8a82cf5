package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/finch-systems/msgindex/internal/models"
)

// InsertMessage idempotently inserts a message record. A duplicate-key
// error on message_id means a different ingestion path already won the
// race — that is the dedup contract working, not a failure, so it is
// silently swallowed. Every other write error propagates.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.IngestedAt.IsZero() {
		msg.IngestedAt = time.Now().UTC()
	}
	_, err := s.messages.InsertOne(ctx, msg)
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return fmt.Errorf("insert message: %w", err)
}

// UpsertUser records the latest observed identity for a user. last_seen_ms
// uses $max so a late-arriving backfill message from earlier in the
// channel's history never regresses a user's last-seen time — see the
// store's design notes on the spec's last_seen_ms open question.
//
// Best-effort: errors are logged and swallowed, never propagated to the
// caller's write path.
func (s *Store) UpsertUser(ctx context.Context, userID, username, globalName string, lastSeenMs int64) {
	if userID == "" {
		return
	}
	now := time.Now().UTC()
	_, err := s.users.UpdateOne(ctx,
		bsonM{"user_id": userID},
		bsonM{
			"$set": bsonM{
				"username":    username,
				"global_name": globalName,
				"updated_at":  now,
			},
			"$max": bsonM{"last_seen_ms": lastSeenMs},
			"$setOnInsert": bsonM{"user_id": userID},
		},
		upsertOpts,
	)
	if err != nil {
		s.logger.Error("upsert user failed", zap.String("user_id", userID), zap.Error(err))
	}
}
