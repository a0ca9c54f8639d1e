// Package discord posts formatted chat messages to a Discord webhook and
// translates the response into a delivery outcome for the dispatcher.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kyralis/chatrelay-go/internal/relay"
)

// WebhookPrefix is the required prefix of a valid destination webhook URL.
const WebhookPrefix = "https://discord.com/api/webhooks/"

const userAgent = "chatrelay/1.0 (+https://github.com/kyralis/chatrelay-go)"

// ClientConfig configures the outbound webhook client.
type ClientConfig struct {
	URL               string
	Timeout           time.Duration // per-request timeout (default 10s)
	DefaultRetryAfter time.Duration // wait when a 429 omits retry-after (default 1s)
	MinRetryAfter     time.Duration // floor on any 429 wait (default 500ms)
}

// Client performs single delivery attempts. It holds no queue and makes no
// retry decisions; those belong to the dispatcher.
type Client struct {
	url               string
	http              *http.Client
	defaultRetryAfter time.Duration
	minRetryAfter     time.Duration
}

// NewClient creates a webhook client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultRetryAfter == 0 {
		cfg.DefaultRetryAfter = time.Second
	}
	if cfg.MinRetryAfter == 0 {
		cfg.MinRetryAfter = 500 * time.Millisecond
	}
	return &Client{
		url:               cfg.URL,
		http:              &http.Client{Timeout: cfg.Timeout},
		defaultRetryAfter: cfg.DefaultRetryAfter,
		minRetryAfter:     cfg.MinRetryAfter,
	}
}

// Send posts content to the webhook exactly once and classifies the result.
func (c *Client) Send(ctx context.Context, content string) relay.Outcome {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return relay.FailedPermanent(fmt.Errorf("encoding payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return relay.FailedPermanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return relay.FailedTransient(fmt.Errorf("posting to webhook: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		remaining, resetAfter := rateFeedback(resp)
		return relay.Delivered(remaining, resetAfter)
	case resp.StatusCode == http.StatusTooManyRequests:
		return relay.Throttled(c.retryAfter(resp))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return relay.FailedPermanent(fmt.Errorf("webhook rejected request: status %d", resp.StatusCode))
	default:
		return relay.FailedTransient(fmt.Errorf("webhook error: status %d", resp.StatusCode))
	}
}

// retryAfter extracts the wait from a 429: Retry-After header first, then
// the retry_after field in the JSON body, then the configured default.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	wait := c.defaultRetryAfter

	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.ParseFloat(header, 64); err == nil {
			wait = secondsToDuration(secs)
		}
	} else if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		var parsed struct {
			RetryAfter float64 `json:"retry_after"`
		}
		if json.Unmarshal(body, &parsed) == nil && parsed.RetryAfter > 0 {
			wait = secondsToDuration(parsed.RetryAfter)
		}
	}

	if wait < c.minRetryAfter {
		wait = c.minRetryAfter
	}
	return wait
}

// rateFeedback reads the rate-limit headers from a successful response.
// remaining is -1 when the header is absent.
func rateFeedback(resp *http.Response) (remaining int, resetAfter time.Duration) {
	remaining = -1
	if header := resp.Header.Get("X-RateLimit-Remaining"); header != "" {
		if n, err := strconv.Atoi(header); err == nil {
			remaining = n
		}
	}
	if header := resp.Header.Get("X-RateLimit-Reset-After"); header != "" {
		if secs, err := strconv.ParseFloat(header, 64); err == nil {
			resetAfter = secondsToDuration(secs)
		}
	}
	return remaining, resetAfter
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
