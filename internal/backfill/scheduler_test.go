package backfill

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/finch-systems/msgindex/internal/discordapi"
	"github.com/finch-systems/msgindex/internal/models"
	"github.com/finch-systems/msgindex/internal/ratelimit"
)

// fakeStore is an in-memory Store for one channel, enough to drive the
// scheduler through claim -> fetch -> advance -> complete.
type fakeStore struct {
	mu       sync.Mutex
	state    *models.BackfillState
	claimed  bool
	messages []*models.Message
	users    []string
}

func newFakeStore(channelID string) *fakeStore {
	return &fakeStore{state: &models.BackfillState{ChannelID: channelID}}
}

func (f *fakeStore) ClaimNextChannel(ctx context.Context) (*models.BackfillState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Done || f.claimed {
		return nil, nil
	}
	f.claimed = true
	clone := *f.state
	return &clone, nil
}

func (f *fakeStore) UpdateChannelState(ctx context.Context, channelID, cursorBefore string, done bool, errorDelta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.CursorBefore = cursorBefore
	f.state.Done = done
	f.state.ErrorCount += errorDelta
	f.claimed = false
	return nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) UpsertUser(ctx context.Context, userID, username, globalName string, lastSeenMs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
}

func (f *fakeStore) snapshot() models.BackfillState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.state
}

func newTestScheduler(t *testing.T, handler http.HandlerFunc, st Store) (*Scheduler, func()) {
	srv := httptest.NewServer(handler)
	coordinator := ratelimit.New(http.DefaultClient, zap.NewNop(), "")
	api := discordapi.NewClient(srv.URL, coordinator)
	s := NewScheduler(api, st, zap.NewNop(), 2, 1)
	return s, srv.Close
}

func TestIterateAdvancesCursorAcrossPages(t *testing.T) {
	pages := [][]map[string]any{
		{{"id": "20"}, {"id": "19"}},
		{{"id": "18"}, {"id": "17"}},
		{},
	}
	var callIdx int
	handler := func(w http.ResponseWriter, r *http.Request) {
		if callIdx >= len(pages) {
			callIdx = len(pages) - 1
		}
		page := pages[callIdx]
		callIdx++
		json.NewEncoder(w).Encode(page)
	}

	st := newFakeStore("chan-1")
	s, closeSrv := newTestScheduler(t, handler, st)
	defer closeSrv()

	ctx := context.Background()
	for i := 0; i < len(pages); i++ {
		if err := s.iterate(ctx, zap.NewNop()); err != nil {
			t.Fatalf("iterate %d: %v", i, err)
		}
	}

	final := st.snapshot()
	if !final.Done {
		t.Fatalf("expected channel backfill to be marked done")
	}
	if final.CursorBefore != "17" {
		t.Fatalf("expected cursor to land on oldest id 17, got %q", final.CursorBefore)
	}
	if len(st.messages) != 4 {
		t.Fatalf("expected 4 messages inserted, got %d", len(st.messages))
	}
}

func TestIterateHandlesRateLimitedPage(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"retry_after": 0.01, "global": false}`))
	}

	st := newFakeStore("chan-2")
	s, closeSrv := newTestScheduler(t, handler, st)
	defer closeSrv()

	if err := s.iterate(context.Background(), zap.NewNop()); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	final := st.snapshot()
	if final.Done {
		t.Fatalf("a rate-limited page must not mark the channel done")
	}
	if final.ErrorCount != 1 {
		t.Fatalf("expected error_count to increment, got %d", final.ErrorCount)
	}
}

func TestIterateReturnsNilWithoutErrorWhenNoCandidate(t *testing.T) {
	st := newFakeStore("chan-3")
	st.state.Done = true

	s, closeSrv := newTestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request should be issued when there is no claimable channel")
	}, st)
	defer closeSrv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.iterate(ctx, zap.NewNop()); err != nil {
		t.Fatalf("iterate: %v", err)
	}
}
