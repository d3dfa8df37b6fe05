package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client is a thin HTTP client for the trade-api control endpoints.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a Client from the loaded configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		base: strings.TrimRight(cfg.APIBase, "/"),
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// StopAll requests a stop of every active run, optionally scoped to one bot.
func (c *Client) StopAll(ctx context.Context, botID string) (json.RawMessage, error) {
	q := url.Values{}
	if botID != "" {
		q.Set("bot_id", botID)
	}
	return c.do(ctx, http.MethodPost, "/v1/runs/stop-all", q, nil)
}

// Reconcile triggers a stale-lease sweep, optionally scoped to one bot.
func (c *Client) Reconcile(ctx context.Context, botID string) (json.RawMessage, error) {
	q := url.Values{}
	if botID != "" {
		q.Set("bot_id", botID)
	}
	return c.do(ctx, http.MethodPost, "/v1/runs/reconcile", q, nil)
}

// ListEvents fetches the event log for a run.
func (c *Client) ListEvents(ctx context.Context, runID, after string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if after != "" {
		q.Set("after", after)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	return c.do(ctx, http.MethodGet, "/v1/runs/"+runID+"/events", q, nil)
}

// ArchiveRun exports a finished run's event log to object storage.
func (c *Client) ArchiveRun(ctx context.Context, runID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/v1/runs/"+runID+"/archive", nil, nil)
}

// ListBots fetches all registered bots.
func (c *Client) ListBots(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/bots", nil, nil)
}

// StopRun stops one run belonging to a bot.
func (c *Client) StopRun(ctx context.Context, botID, runID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/v1/bots/"+botID+"/runs/"+runID+"/stop", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	return json.RawMessage(data), nil
}
