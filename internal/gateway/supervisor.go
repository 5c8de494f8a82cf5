package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ConnectionObserver receives connected/disconnected transitions; the
// supervisor's only consumer today is the health endpoint's liveness flag.
type ConnectionObserver interface {
	SetGatewayConnected(connected bool)
}

// Supervisor restarts the gateway session with a fixed backoff after any
// failure — disconnect, protocol error, or reconnect/invalid-session
// request. There is no resume: every restart re-identifies cold.
type Supervisor struct {
	url      string
	token    string
	intents  int
	store    Store
	logger   *zap.Logger
	observer ConnectionObserver
}

func NewSupervisor(url, token string, intents int, store Store, logger *zap.Logger, observer ConnectionObserver) *Supervisor {
	return &Supervisor{url: url, token: token, intents: intents, store: store, logger: logger, observer: observer}
}

// Run loops connect -> run -> backoff until ctx is cancelled.
func (sup *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		session := newSession(sup.url, sup.token, sup.intents, sup.store, sup.logger)
		sup.setConnected(true)
		err := session.run(ctx)
		sup.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			sup.logger.Warn("gateway session ended, reconnecting", zap.Error(err))
		}

		sleepCtx(ctx, reconnectBackoff)
	}
}

func (sup *Supervisor) setConnected(connected bool) {
	if sup.observer != nil {
		sup.observer.SetGatewayConnected(connected)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
