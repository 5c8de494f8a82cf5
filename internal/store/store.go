// Package store adapts the document store: idempotent message insert, user
// projection upserts, and backfill-state CRUD, plus the index contract they
// all depend on.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Store wraps the document store client and the three collections the core
// touches: messages, channel_backfill, users.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger

	messages  *mongo.Collection
	backfill  *mongo.Collection
	users     *mongo.Collection
}

// New connects to the document store and returns a Store bound to dbName.
// Connection pooling is handled internally by the driver; callers share one
// Store across all components.
func New(ctx context.Context, uri, dbName string, logger *zap.Logger) (*Store, error) {
	clientOpts := options.Client().ApplyURI(uri).
		SetMaxPoolSize(25).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(20 * time.Minute)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping store: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client:   client,
		db:       db,
		logger:   logger,
		messages: db.Collection("messages"),
		backfill: db.Collection("channel_backfill"),
		users:    db.Collection("users"),
	}

	logger.Info("store connection established", zap.String("database", dbName))
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("closing store connection")
	return s.client.Disconnect(ctx)
}

func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
