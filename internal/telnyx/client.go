// Package telnyx is a minimal client for the provider's call-control and
// messaging REST APIs. It covers only the commands the engine issues.
package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Client issues call-control commands and sends SMS messages against the
// provider's v2 REST API. All commands carry a generated command id so a
// retried request is deduplicated provider-side.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a provider API client. baseURL is the API root
// (e.g. "https://api.telnyx.com"). The client rate-limits itself to stay
// under the provider's per-key command quota.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		logger:     logger,
	}
}

// Configured returns true if the client has a base URL and API key.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Answer answers a ringing call.
func (c *Client) Answer(ctx context.Context, callControlID string) error {
	return c.command(ctx, callControlID, "answer", map[string]any{})
}

// Hangup terminates a call leg.
func (c *Client) Hangup(ctx context.Context, callControlID string) error {
	return c.command(ctx, callControlID, "hangup", map[string]any{})
}

// Transfer transfers a live call to a new destination.
func (c *Client) Transfer(ctx context.Context, callControlID, to string) error {
	return c.command(ctx, callControlID, "transfer", map[string]any{"to": to})
}

// StartRecording starts recording on a call. channels is "single" or
// "dual"; dual puts each party on its own track.
func (c *Client) StartRecording(ctx context.Context, callControlID, channels string) error {
	return c.command(ctx, callControlID, "record_start", map[string]any{
		"format":   "mp3",
		"channels": channels,
	})
}

// PlayAudio plays an audio file into a call, used for voicemail drops.
func (c *Client) PlayAudio(ctx context.Context, callControlID, audioURL string) error {
	return c.command(ctx, callControlID, "playback_start", map[string]any{
		"audio_url": audioURL,
	})
}

// command posts a call-control action. The payload is augmented with a
// fresh command_id for provider-side deduplication.
func (c *Client) command(ctx context.Context, callControlID, action string, payload map[string]any) error {
	payload["command_id"] = uuid.NewString()

	path := fmt.Sprintf("/v2/calls/%s/actions/%s", callControlID, action)
	if err := c.post(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("telnyx: %s: %w", action, err)
	}

	c.logger.Debug("call command sent", "action", action, "call_control_id", callControlID)
	return nil
}

// SMSResult is the provider's acknowledgement of an outbound message.
type SMSResult struct {
	MessageID string
}

// SendSMS sends an outbound text message and returns the provider's
// message id.
func (c *Client) SendSMS(ctx context.Context, from, to, text string) (*SMSResult, error) {
	payload := map[string]any{
		"from": from,
		"to":   to,
		"text": text,
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/v2/messages", payload, &resp); err != nil {
		return nil, fmt.Errorf("telnyx: sending sms: %w", err)
	}

	c.logger.Debug("sms sent", "to", to, "message_id", resp.Data.ID)
	return &SMSResult{MessageID: resp.Data.ID}, nil
}

// post issues an authenticated JSON POST and decodes the response into
// out when non-nil.
func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Errors []struct {
				Title  string `json:"title"`
				Detail string `json:"detail"`
			} `json:"errors"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && len(apiErr.Errors) > 0 {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, apiErr.Errors[0].Title)
		}
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
