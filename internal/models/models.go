// Package models holds the plain document shapes persisted by the store
// adapter. No business logic lives here — these are data carriers, the way
// the teacher's own model package keeps models dumb.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Source records which ingestion path first observed a message.
type Source string

const (
	SourceLive     Source = "live"
	SourceBackfill Source = "backfill"
)

// Message is the primary ingested entity. message_id is the dedup key,
// enforced by a unique index at the store layer — the core never updates
// a record once inserted.
type Message struct {
	MessageID   string    `bson:"message_id"`
	ChannelID   string    `bson:"channel_id"`
	GuildID     string    `bson:"guild_id,omitempty"`
	AuthorID    string    `bson:"author_id,omitempty"`
	Timestamp   string    `bson:"timestamp"`
	TimestampMs int64     `bson:"timestamp_ms"`
	Source      Source    `bson:"source"`
	Raw         bson.M    `bson:"raw"`
	IngestedAt  time.Time `bson:"ingested_at"`
}

// User is the latest observed identity for a user_id, upserted on every
// message insert attempt.
type User struct {
	UserID     string    `bson:"user_id"`
	Username   string    `bson:"username,omitempty"`
	GlobalName string    `bson:"global_name,omitempty"`
	LastSeenMs int64     `bson:"last_seen_ms"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// BackfillState tracks the pagination cursor and completion status of one
// channel's historical backfill.
type BackfillState struct {
	ChannelID    string    `bson:"channel_id"`
	GuildID      string    `bson:"guild_id,omitempty"`
	CursorBefore string    `bson:"cursor_before,omitempty"`
	Done         bool      `bson:"done"`
	Claimed      bool      `bson:"claimed"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
	ErrorCount   int       `bson:"error_count"`
}
