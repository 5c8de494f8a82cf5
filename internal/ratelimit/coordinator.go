// Package ratelimit serializes HTTP requests per upstream rate-limit
// bucket and enforces the global cooldown the upstream signals via
// response headers. The coordinator never retries on its own — it hands
// the response (429 included) back to the caller, which owns retry
// policy.
package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRetryMs = 1000
	minRetryMs     = 250
	pollInterval   = 25 * time.Millisecond
)

// Observation summarizes what the coordinator learned from a response, so
// the caller can decide its own retry/sleep behavior without re-parsing
// headers.
type Observation struct {
	RateLimited   bool
	RetryAfterMs  int64
	RemainingZero bool
	ResetAfterMs  int64
}

// Coordinator enforces one-in-flight-per-bucket and the global cooldown
// across every HTTP call routed through it.
type Coordinator struct {
	client *http.Client
	logger *zap.Logger

	mu            sync.Mutex
	routeToBucket map[string]string // route_key -> learned bucket_id
	buckets       map[string]*bucket

	globalNextAllowedMs atomic.Int64

	// redisClient optionally mirrors the global cooldown across processes
	// sharing one bot token. Nil disables cross-process coordination
	// entirely — the coordinator then behaves purely in-memory.
	redisClient *redis.Client
}

// New constructs a coordinator. redisAddr may be empty, in which case the
// global cooldown stays process-local.
func New(client *http.Client, logger *zap.Logger, redisAddr string) *Coordinator {
	c := &Coordinator{
		client:        client,
		logger:        logger,
		routeToBucket: make(map[string]string),
		buckets:       make(map[string]*bucket),
	}
	if redisAddr != "" {
		c.redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return c
}

// Get issues an HTTP GET through the coordinator, serialized per bucket and
// respecting the global cooldown.
func (c *Coordinator) Get(ctx context.Context, url, routeKey string) (*http.Response, Observation, error) {
	if err := c.waitGlobal(ctx); err != nil {
		return nil, Observation{}, err
	}

	b := c.bucketFor(routeKey)
	b.acquire()
	defer b.release()

	if err := waitUntil(ctx, &b.nextAllowedMs); err != nil {
		return nil, Observation{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Observation{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Observation{}, fmt.Errorf("do request: %w", err)
	}

	obs := c.observe(ctx, resp, routeKey, b)
	return resp, obs, nil
}

func (c *Coordinator) bucketFor(routeKey string) *bucket {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := "route:" + routeKey
	if bucketID, ok := c.routeToBucket[routeKey]; ok {
		key = "id:" + bucketID
	}
	if b, ok := c.buckets[key]; ok {
		return b
	}
	b := newBucket()
	c.buckets[key] = b
	return b
}

// observe applies the rules in order while still holding the bucket's
// gate, so the next waiter already sees the updated cooldown.
func (c *Coordinator) observe(ctx context.Context, resp *http.Response, routeKey string, held *bucket) Observation {
	now := nowMs()

	if learned := resp.Header.Get("X-RateLimit-Bucket"); learned != "" {
		c.mu.Lock()
		c.routeToBucket[routeKey] = learned
		idKey := "id:" + learned
		if _, exists := c.buckets[idKey]; !exists {
			c.buckets[idKey] = held
		}
		c.mu.Unlock()
	}

	var obs Observation

	if resp.StatusCode == http.StatusTooManyRequests {
		bodyRetryMs, isGlobal := parse429Body(resp)

		var retryMs int64
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.ParseFloat(ra, 64); err == nil {
				retryMs = int64(math.Ceil(secs * 1000))
			}
		}
		if retryMs <= 0 {
			retryMs = bodyRetryMs
		}
		if retryMs <= 0 {
			retryMs = defaultRetryMs
		}
		if retryMs < minRetryMs {
			retryMs = minRetryMs
		}

		held.bumpNextAllowed(now + retryMs)
		if isGlobal {
			c.bumpGlobal(ctx, now+retryMs)
		}

		obs.RateLimited = true
		obs.RetryAfterMs = retryMs
		return obs
	}

	remaining := resp.Header.Get("X-RateLimit-Remaining")
	resetAfter := resp.Header.Get("X-RateLimit-Reset-After")
	if remaining != "" && resetAfter != "" {
		if rem, err := strconv.Atoi(remaining); err == nil && rem <= 0 {
			if secs, err := strconv.ParseFloat(resetAfter, 64); err == nil {
				resetMs := int64(math.Ceil(secs * 1000))
				if resetMs < minRetryMs {
					resetMs = minRetryMs
				}
				held.bumpNextAllowed(now + resetMs)
				obs.RemainingZero = true
				obs.ResetAfterMs = resetMs

				if resp.Header.Get("X-RateLimit-Global") != "" {
					c.bumpGlobal(ctx, now+resetMs)
				}
			}
		}
	}

	return obs
}

func (c *Coordinator) bumpGlobal(ctx context.Context, candidateMs int64) {
	for {
		current := c.globalNextAllowedMs.Load()
		if candidateMs <= current {
			break
		}
		if c.globalNextAllowedMs.CompareAndSwap(current, candidateMs) {
			break
		}
	}
	if c.redisClient != nil {
		c.mirrorGlobalToRedis(ctx, candidateMs)
	}
}

func (c *Coordinator) waitGlobal(ctx context.Context) error {
	if c.redisClient != nil {
		if remote, err := c.redisClient.Get(ctx, globalCooldownKey).Int64(); err == nil {
			c.bumpGlobalLocal(remote)
		}
	}
	return waitUntil(ctx, &c.globalNextAllowedMs)
}

func (c *Coordinator) bumpGlobalLocal(candidateMs int64) {
	for {
		current := c.globalNextAllowedMs.Load()
		if candidateMs <= current {
			return
		}
		if c.globalNextAllowedMs.CompareAndSwap(current, candidateMs) {
			return
		}
	}
}

const globalCooldownKey = "discord_indexer:global_next_allowed_ms"

func (c *Coordinator) mirrorGlobalToRedis(ctx context.Context, candidateMs int64) {
	ttl := time.Duration(candidateMs-nowMs()+1000) * time.Millisecond
	if ttl <= 0 {
		return
	}
	if err := c.redisClient.Set(ctx, globalCooldownKey, candidateMs, ttl).Err(); err != nil {
		c.logger.Warn("failed to mirror global cooldown to redis", zap.Error(err))
	}
}

func parse429Body(resp *http.Response) (retryMs int64, isGlobal bool) {
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return 0, false
	}

	var body struct {
		RetryAfter float64 `json:"retry_after"`
		Global     bool    `json:"global"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return 0, false
	}
	if body.RetryAfter > 0 {
		retryMs = int64(math.Ceil(body.RetryAfter * 1000))
	}
	return retryMs, body.Global
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// waitUntil polls until the atomic deadline has passed. This is a polling
// sleep, not a gate: multiple callers may observe the elapsed deadline and
// proceed concurrently, which is fine for the global cooldown and for a
// bucket's own deadline once its gate has already been acquired.
func waitUntil(ctx context.Context, deadlineMs *atomic.Int64) error {
	for {
		remaining := deadlineMs.Load() - nowMs()
		if remaining <= 0 {
			return nil
		}
		wait := pollInterval
		if time.Duration(remaining)*time.Millisecond < wait {
			wait = time.Duration(remaining) * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
