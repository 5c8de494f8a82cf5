// Package gateway implements the persistent WebSocket session to the
// upstream gateway: handshake, heartbeat, IDENTIFY, dispatch, reconnect.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/finch-systems/msgindex/internal/models"
	"github.com/finch-systems/msgindex/internal/normalize"
)

const reconnectBackoff = 5 * time.Second

// Opcodes consumed by the core.
const (
	opDispatch  = 0
	opHeartbeat = 1
	opIdentify  = 2
	opReconnect = 7
	opInvalid   = 9
	opHello     = 10
)

// Store is the subset of the store adapter the gateway session needs.
type Store interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	UpsertUser(ctx context.Context, userID, username, globalName string, lastSeenMs int64)
}

// frame is the tagged envelope every gateway payload arrives in: opcode,
// raw data (kept opaque until we know which dispatch type it is),
// sequence, and event name.
type frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  string          `json:"t"`
}

type identifyPayload struct {
	Op int `json:"op"`
	D  struct {
		Token      string `json:"token"`
		Intents    int    `json:"intents"`
		Properties struct {
			OS      string `json:"os"`
			Browser string `json:"browser"`
			Device  string `json:"device"`
		} `json:"properties"`
	} `json:"d"`
}

type heartbeatPayload struct {
	Op int    `json:"op"`
	D  *int64 `json:"d"`
}

// Session manages one connect-handshake-dispatch-disconnect cycle. Create
// a new Session per connection attempt; Supervisor owns the reconnect
// loop.
type Session struct {
	url     string
	token   string
	intents int
	store   Store
	logger  *zap.Logger

	conn         *websocket.Conn
	lastSequence atomic.Int64
}

func newSession(url, token string, intents int, store Store, logger *zap.Logger) *Session {
	connectionID := uuid.NewString()
	return &Session{url: url, token: token, intents: intents, store: store, logger: logger.With(zap.String("connection_id", connectionID))}
}

// run executes one full CONNECTING -> HELLO -> READY -> CLOSED cycle. It
// returns when the socket closes, for any reason; the caller (Supervisor)
// decides whether and when to reconnect. last_sequence is intentionally
// not carried across calls by this type — each Session re-identifies
// cold, per the spec's "no resume" design.
func (s *Session) run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	s.conn = conn
	defer conn.Close()

	var helloFrame frame
	if err := conn.ReadJSON(&helloFrame); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if helloFrame.Op != opHello {
		return fmt.Errorf("expected hello opcode, got %d", helloFrame.Op)
	}
	var hello struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(helloFrame.D, &hello); err != nil {
		return fmt.Errorf("parse hello: %w", err)
	}

	if err := s.identify(); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	hbCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go s.heartbeatLoop(hbCtx, time.Duration(hello.HeartbeatInterval)*time.Millisecond)

	return s.readLoop(ctx)
}

func (s *Session) identify() error {
	payload := identifyPayload{Op: opIdentify}
	payload.D.Token = s.token
	payload.D.Intents = s.intents
	payload.D.Properties.OS = "linux"
	payload.D.Properties.Browser = "msgindex"
	payload.D.Properties.Device = "msgindex"
	return s.conn.WriteJSON(payload)
}

func (s *Session) heartbeatLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq := s.lastSequence.Load()
			var seqPtr *int64
			if seq != 0 {
				seqPtr = &seq
			}
			if err := s.conn.WriteJSON(heartbeatPayload{Op: opHeartbeat, D: seqPtr}); err != nil {
				s.logger.Warn("heartbeat send failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read dispatch: %w", err)
		}
		if f.S != nil {
			s.lastSequence.Store(*f.S)
		}

		switch f.Op {
		case opReconnect:
			return fmt.Errorf("gateway requested reconnect")
		case opInvalid:
			return fmt.Errorf("gateway invalidated session")
		case opDispatch:
			s.handleDispatch(ctx, f)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Session) handleDispatch(ctx context.Context, f frame) {
	if f.T != "MESSAGE_CREATE" {
		return
	}
	msg, ok := normalize.Normalize(f.D, models.SourceLive)
	if !ok {
		return
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		s.logger.Error("live message insert failed", zap.String("message_id", msg.MessageID), zap.Error(err))
		return
	}
	if author, ok := normalize.Author(f.D); ok {
		s.store.UpsertUser(ctx, author.UserID, author.Username, author.GlobalName, msg.TimestampMs)
	}
}
