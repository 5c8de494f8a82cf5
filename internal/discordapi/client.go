// Package discordapi is the thin REST client over the upstream chat
// platform's HTTP API, routed entirely through the rate-limit coordinator.
package discordapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/finch-systems/msgindex/internal/ratelimit"
)

// ChannelTypeText and ChannelTypeAnnouncement are the only channel types
// the backfill scheduler seeds, per the spec's channel-enumeration step.
const (
	ChannelTypeText         = 0
	ChannelTypeAnnouncement = 5
)

type Client struct {
	baseURL     string
	coordinator *ratelimit.Coordinator
}

func NewClient(baseURL string, coordinator *ratelimit.Coordinator) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), coordinator: coordinator}
}

type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Channel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
	Type    int    `json:"type"`
	Name    string `json:"name"`
}

// ListGuildsPage fetches one page of the authenticated bot's guild list.
func (c *Client) ListGuildsPage(ctx context.Context, after string) ([]Guild, error) {
	u := fmt.Sprintf("%s/users/@me/guilds?limit=200", c.baseURL)
	if after != "" {
		u += "&after=" + url.QueryEscape(after)
	}
	resp, _, err := c.coordinator.Get(ctx, u, "GET:/users/@me/guilds")
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list guilds: unexpected status %d", resp.StatusCode)
	}
	return decodeJSONArray[Guild](resp.Body)
}

// ListChannels fetches every channel for a guild.
func (c *Client) ListChannels(ctx context.Context, guildID string) ([]Channel, error) {
	u := fmt.Sprintf("%s/guilds/%s/channels", c.baseURL, guildID)
	resp, _, err := c.coordinator.Get(ctx, u, "GET:/guilds/:guildId/channels")
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list channels: unexpected status %d", resp.StatusCode)
	}
	return decodeJSONArray[Channel](resp.Body)
}

// MessagesPageResult is the raw outcome of one backfill page fetch. The
// scheduler — not this client — decides what a given status/body means,
// per the spec's outcome table (429 / other non-2xx / empty array / page).
type MessagesPageResult struct {
	StatusCode  int
	Body        []byte
	Observation ratelimit.Observation
}

// FetchMessagesPage issues one GET /channels/{id}/messages call.
func (c *Client) FetchMessagesPage(ctx context.Context, channelID string, limit int, before string) (MessagesPageResult, error) {
	u := fmt.Sprintf("%s/channels/%s/messages?limit=%s", c.baseURL, channelID, strconv.Itoa(limit))
	if before != "" {
		u += "&before=" + url.QueryEscape(before)
	}
	resp, obs, err := c.coordinator.Get(ctx, u, "GET:/channels/:channelId/messages")
	if err != nil {
		return MessagesPageResult{}, fmt.Errorf("fetch messages page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return MessagesPageResult{}, fmt.Errorf("read messages page body: %w", err)
	}
	return MessagesPageResult{StatusCode: resp.StatusCode, Body: body, Observation: obs}, nil
}

func decodeJSONArray[T any](r io.Reader) ([]T, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return out, nil
}
