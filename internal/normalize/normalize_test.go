package normalize

import (
	"testing"

	"github.com/finch-systems/msgindex/internal/models"
)

func TestNormalizeExtractsCoreFields(t *testing.T) {
	raw := []byte(`{
		"id": "111",
		"channel_id": "222",
		"guild_id": "333",
		"timestamp": "2024-01-02T03:04:05.000000+00:00",
		"content": "hello",
		"author": {"id": "444", "username": "alice", "global_name": "Alice"}
	}`)

	msg, ok := Normalize(raw, models.SourceLive)
	if !ok {
		t.Fatalf("expected normalize to succeed")
	}
	if msg.MessageID != "111" || msg.ChannelID != "222" || msg.GuildID != "333" {
		t.Fatalf("unexpected core fields: %+v", msg)
	}
	if msg.AuthorID != "444" {
		t.Fatalf("expected author id 444, got %q", msg.AuthorID)
	}
	if msg.TimestampMs == 0 {
		t.Fatalf("expected a parsed timestamp")
	}
	if msg.Source != models.SourceLive {
		t.Fatalf("expected source live, got %q", msg.Source)
	}
	if msg.Raw["content"] != "hello" {
		t.Fatalf("expected raw blob to retain content field, got %+v", msg.Raw)
	}
}

func TestNormalizeRejectsMissingID(t *testing.T) {
	raw := []byte(`{"channel_id": "222"}`)
	if _, ok := Normalize(raw, models.SourceBackfill); ok {
		t.Fatalf("expected normalize to reject a payload with no id")
	}
}

func TestNormalizeRejectsNonStringID(t *testing.T) {
	raw := []byte(`{"id": 111, "channel_id": "222"}`)
	if _, ok := Normalize(raw, models.SourceBackfill); ok {
		t.Fatalf("expected normalize to reject a numeric id")
	}
}

func TestNormalizeToleratesMissingAuthor(t *testing.T) {
	raw := []byte(`{"id": "111", "channel_id": "222", "timestamp": "2024-01-02T03:04:05Z"}`)
	msg, ok := Normalize(raw, models.SourceBackfill)
	if !ok {
		t.Fatalf("expected normalize to succeed without an author")
	}
	if msg.AuthorID != "" {
		t.Fatalf("expected empty author id, got %q", msg.AuthorID)
	}
}

func TestExtractIDIgnoresOtherwiseInvalidPayload(t *testing.T) {
	raw := []byte(`{"id": "999", "timestamp": 12345}`)
	id, ok := ExtractID(raw)
	if !ok || id != "999" {
		t.Fatalf("expected id 999, got %q ok=%v", id, ok)
	}
}

func TestAuthorRequiresAuthorID(t *testing.T) {
	raw := []byte(`{"id": "1", "author": {"username": "bob"}}`)
	if _, ok := Author(raw); ok {
		t.Fatalf("expected author projection to be rejected without an id")
	}
}

func TestAuthorExtractsProjection(t *testing.T) {
	raw := []byte(`{"id": "1", "author": {"id": "42", "username": "bob", "global_name": "Bob"}}`)
	proj, ok := Author(raw)
	if !ok {
		t.Fatalf("expected author projection")
	}
	if proj.UserID != "42" || proj.Username != "bob" || proj.GlobalName != "Bob" {
		t.Fatalf("unexpected projection: %+v", proj)
	}
}
