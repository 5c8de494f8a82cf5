// Package normalize turns a raw upstream MESSAGE_CREATE-shaped JSON payload
// into a models.Message, tolerating missing or mistyped fields everywhere
// except the id.
package normalize

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/finch-systems/msgindex/internal/models"
)

// wireMessage is the typed projection of the fields the core cares about.
// Everything else in the payload is preserved only in the raw blob — this
// struct exists to read tolerantly, not to be the storage shape.
type wireMessage struct {
	ID        json.RawMessage `json:"id"`
	ChannelID json.RawMessage `json:"channel_id"`
	GuildID   json.RawMessage `json:"guild_id"`
	Timestamp json.RawMessage `json:"timestamp"`
	Author    json.RawMessage `json:"author"`
}

type wireAuthor struct {
	ID         json.RawMessage `json:"id"`
	Username   json.RawMessage `json:"username"`
	GlobalName json.RawMessage `json:"global_name"`
}

// author decodes the author object, or returns nil when it is absent or
// not an object.
func (w *wireMessage) author() *wireAuthor {
	var a wireAuthor
	if len(w.Author) == 0 || json.Unmarshal(w.Author, &a) != nil {
		return nil
	}
	return &a
}

// Normalize extracts a models.Message from a raw payload. It returns
// (nil, false) when the payload lacks a string id — the caller must not
// insert such a record.
func Normalize(raw []byte, source models.Source) (*models.Message, bool) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, false
	}

	id, ok := asString(w.ID)
	if !ok || id == "" {
		return nil, false
	}

	var rawDoc bson.M
	if err := json.Unmarshal(raw, &rawDoc); err != nil {
		rawDoc = bson.M{}
	}

	msg := &models.Message{
		MessageID: id,
		ChannelID: mustString(w.ChannelID),
		GuildID:   mustString(w.GuildID),
		Timestamp: mustString(w.Timestamp),
		Source:    source,
		Raw:       rawDoc,
	}
	if a := w.author(); a != nil {
		msg.AuthorID = mustString(a.ID)
	}
	msg.TimestampMs = parseTimestampMs(msg.Timestamp)
	return msg, true
}

// ExtractID reads just the id field, independent of whether the payload
// would otherwise be accepted by Normalize. The backfill scheduler uses
// this to compute the next page cursor from the oldest element of a page
// even if that element is itself malformed in some other way.
func ExtractID(raw []byte) (string, bool) {
	var w struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", false
	}
	return asString(w.ID)
}

// AuthorProjection is the subset of author fields the user projection
// needs; callers extract it from the same raw payload and pass it to the
// store's UpsertUser after inserting the message.
type AuthorProjection struct {
	UserID     string
	Username   string
	GlobalName string
}

// Author extracts the author projection from a raw payload, or the zero
// value if the payload has no author object or no author id.
func Author(raw []byte) (AuthorProjection, bool) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return AuthorProjection{}, false
	}
	a := w.author()
	if a == nil {
		return AuthorProjection{}, false
	}
	id, ok := asString(a.ID)
	if !ok || id == "" {
		return AuthorProjection{}, false
	}
	return AuthorProjection{
		UserID:     id,
		Username:   mustString(a.Username),
		GlobalName: mustString(a.GlobalName),
	}, true
}

func asString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func mustString(raw json.RawMessage) string {
	s, _ := asString(raw)
	return s
}

func parseTimestampMs(ts string) int64 {
	if ts == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return 0
		}
	}
	return t.UnixMilli()
}
