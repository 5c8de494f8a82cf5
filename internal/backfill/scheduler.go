// Package backfill implements the per-channel historical-message scheduler:
// channel claim/release, pagination cursor, and completion detection.
package backfill

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/finch-systems/msgindex/internal/discordapi"
	"github.com/finch-systems/msgindex/internal/models"
	"github.com/finch-systems/msgindex/internal/normalize"
	"github.com/finch-systems/msgindex/internal/ratelimit"
)

const noCandidateSleep = 2 * time.Second

// Store is the subset of the store adapter the scheduler depends on —
// declared here so tests can supply a fake without importing the mongo
// driver.
type Store interface {
	ClaimNextChannel(ctx context.Context) (*models.BackfillState, error)
	UpdateChannelState(ctx context.Context, channelID, cursorBefore string, done bool, errorDelta int) error
	InsertMessage(ctx context.Context, msg *models.Message) error
	UpsertUser(ctx context.Context, userID, username, globalName string, lastSeenMs int64)
}

type Scheduler struct {
	api          *discordapi.Client
	store        Store
	logger       *zap.Logger
	pageSize     int
	requestDelay time.Duration
}

func NewScheduler(api *discordapi.Client, store Store, logger *zap.Logger, pageSize int, requestDelayMs int) *Scheduler {
	return &Scheduler{
		api:          api,
		store:        store,
		logger:       logger,
		pageSize:     pageSize,
		requestDelay: time.Duration(requestDelayMs) * time.Millisecond,
	}
}

// Worker runs one backfill worker's loop until ctx is cancelled. Multiple
// workers run this concurrently; exclusion per channel is enforced by the
// store's atomic claim, not by anything in this package.
func (s *Scheduler) Worker(ctx context.Context, id int) error {
	log := s.logger.With(zap.Int("worker_id", id))
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.iterate(ctx, log); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("backfill iteration failed", zap.Error(err))
			sleepCtx(ctx, 2*time.Second)
		}
	}
}

func (s *Scheduler) iterate(ctx context.Context, log *zap.Logger) error {
	claim, err := s.store.ClaimNextChannel(ctx)
	if err != nil {
		return err
	}
	if claim == nil {
		sleepCtx(ctx, noCandidateSleep)
		return nil
	}

	result, err := s.api.FetchMessagesPage(ctx, claim.ChannelID, s.pageSize, claim.CursorBefore)
	if err != nil {
		log.Warn("backfill page fetch failed", zap.String("channel_id", claim.ChannelID), zap.Error(err))
		if err := s.store.UpdateChannelState(ctx, claim.ChannelID, claim.CursorBefore, false, 1); err != nil {
			return err
		}
		sleepCtx(ctx, s.requestDelay)
		return nil
	}

	switch {
	case result.Observation.RateLimited:
		if err := s.store.UpdateChannelState(ctx, claim.ChannelID, claim.CursorBefore, false, 1); err != nil {
			return err
		}
		sleepCtx(ctx, time.Duration(result.Observation.RetryAfterMs)*time.Millisecond)
		return nil

	case result.StatusCode < 200 || result.StatusCode >= 300:
		log.Warn("backfill page returned non-2xx status", zap.String("channel_id", claim.ChannelID), zap.Int("status_code", result.StatusCode))
		if err := s.store.UpdateChannelState(ctx, claim.ChannelID, claim.CursorBefore, false, 1); err != nil {
			return err
		}
		sleepCtx(ctx, s.requestDelay)
		return nil
	}

	var page []json.RawMessage
	if err := json.Unmarshal(result.Body, &page); err != nil {
		log.Warn("backfill page body was not a JSON array", zap.String("channel_id", claim.ChannelID))
		if err := s.store.UpdateChannelState(ctx, claim.ChannelID, claim.CursorBefore, false, 1); err != nil {
			return err
		}
		sleepCtx(ctx, s.requestDelay)
		return nil
	}

	if len(page) == 0 {
		if err := s.store.UpdateChannelState(ctx, claim.ChannelID, claim.CursorBefore, true, 0); err != nil {
			return err
		}
		log.Info("channel backfill complete", zap.String("channel_id", claim.ChannelID))
		s.postIterationSleep(ctx, result.Observation)
		return nil
	}

	for _, raw := range page {
		msg, ok := normalize.Normalize(raw, models.SourceBackfill)
		if !ok {
			continue
		}
		if err := s.store.InsertMessage(ctx, msg); err != nil {
			return err
		}
		if author, ok := normalize.Author(raw); ok {
			s.store.UpsertUser(ctx, author.UserID, author.Username, author.GlobalName, msg.TimestampMs)
		}
	}

	// The upstream returns messages newest-first, so the last element of
	// the page is the oldest — its id becomes the exclusive upper bound
	// for the next page.
	newCursor, _ := normalize.ExtractID(page[len(page)-1])

	if err := s.store.UpdateChannelState(ctx, claim.ChannelID, newCursor, false, 0); err != nil {
		return err
	}
	s.postIterationSleep(ctx, result.Observation)
	return nil
}

func (s *Scheduler) postIterationSleep(ctx context.Context, obs ratelimit.Observation) {
	if obs.RemainingZero {
		sleepCtx(ctx, time.Duration(obs.ResetAfterMs)*time.Millisecond)
		return
	}
	sleepCtx(ctx, s.requestDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
