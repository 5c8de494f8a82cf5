package discordapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/finch-systems/msgindex/internal/ratelimit"
)

func newTestClient(handler http.HandlerFunc) (*Client, func()) {
	srv := httptest.NewServer(handler)
	coordinator := ratelimit.New(http.DefaultClient, zap.NewNop(), "")
	return NewClient(srv.URL, coordinator), srv.Close
}

func TestListChannelsDecodesArray(t *testing.T) {
	client, closeSrv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/guilds/g1/channels" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]Channel{{ID: "c1", Type: ChannelTypeText}, {ID: "c2", Type: 4}})
	})
	defer closeSrv()

	channels, err := client.ListChannels(context.Background(), "g1")
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 2 || channels[0].ID != "c1" {
		t.Fatalf("unexpected channels %+v", channels)
	}
}

func TestFetchMessagesPagePropagatesStatusAndBody(t *testing.T) {
	client, closeSrv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("before") != "100" {
			t.Fatalf("expected before=100, got %q", r.URL.Query().Get("before"))
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"id":"99"}]`))
	})
	defer closeSrv()

	result, err := client.FetchMessagesPage(context.Background(), "c1", 50, "100")
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.StatusCode)
	}
	if string(result.Body) != `[{"id":"99"}]` {
		t.Fatalf("unexpected body %s", result.Body)
	}
}

func TestListGuildsPageAppendsAfterCursor(t *testing.T) {
	client, closeSrv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") != "abc" {
			t.Fatalf("expected after=abc, got %q", r.URL.Query().Get("after"))
		}
		json.NewEncoder(w).Encode([]Guild{{ID: "g2"}})
	})
	defer closeSrv()

	guilds, err := client.ListGuildsPage(context.Background(), "abc")
	if err != nil {
		t.Fatalf("list guilds: %v", err)
	}
	if len(guilds) != 1 || guilds[0].ID != "g2" {
		t.Fatalf("unexpected guilds %+v", guilds)
	}
}
