package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates every index the core's access patterns depend on,
// if it doesn't already exist. Safe to call on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_message_id"),
		},
		{
			Keys:    bson.D{{Key: "channel_id", Value: 1}, {Key: "timestamp_ms", Value: -1}},
			Options: options.Index().SetName("channel_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "author_id", Value: 1}, {Key: "timestamp_ms", Value: -1}},
			Options: options.Index().SetName("author_timestamp"),
		},
	}); err != nil {
		return fmt.Errorf("ensure message indexes: %w", err)
	}

	if _, err := s.backfill.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "channel_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_channel_id"),
		},
		{
			Keys:    bson.D{{Key: "done", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("done_updated_at"),
		},
	}); err != nil {
		return fmt.Errorf("ensure backfill indexes: %w", err)
	}

	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_user_id"),
		},
		{
			Keys:    bson.D{{Key: "last_seen_ms", Value: -1}},
			Options: options.Index().SetName("last_seen_ms_desc"),
		},
	}); err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}

	return nil
}
