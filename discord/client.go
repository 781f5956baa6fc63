package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://discord.com/api/v10"
	defaultUserAgent = "DiscordBot (https://github.com/runway-bot, 1.0)"

	threadTypePublic  = 11
	maxThreadName     = 100
	threadArchiveMins = 1440
)

// Client talks to the Discord REST API as a bot.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	channelID  string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a client that opens threads under channelID.
func NewClient(token, channelID string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
		channelID:  channelID,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateThread starts a public thread in the configured channel and returns
// its ID.
func (c *Client) CreateThread(ctx context.Context, name string) (string, error) {
	if len([]rune(name)) > maxThreadName {
		name = string([]rune(name)[:maxThreadName])
	}

	body := map[string]any{
		"name":                  name,
		"type":                  threadTypePublic,
		"auto_archive_duration": threadArchiveMins,
	}

	var channel struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/channels/%s/threads", c.channelID)
	if err := c.do(ctx, http.MethodPost, path, body, &channel); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	if channel.ID == "" {
		return "", fmt.Errorf("create thread: empty channel id in response")
	}
	return channel.ID, nil
}

// PostMessage sends content to a channel or thread.
func (c *Client) PostMessage(ctx context.Context, channelID, content string) error {
	body := map[string]any{"content": content}
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

// EditOriginalResponse replaces the content of a deferred interaction reply.
func (c *Client) EditOriginalResponse(ctx context.Context, appID, interactionToken, content string) error {
	body := map[string]any{"content": content}
	path := fmt.Sprintf("/webhooks/%s/%s/messages/@original", appID, interactionToken)
	if err := c.do(ctx, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("edit original response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from Discord.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("discord api: status %d: %s (code %d)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("discord api: status %d", e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	// One retry on 429 after the advertised delay.
	for attempt := 0; ; attempt++ {
		retryAfter, err := c.send(ctx, method, path, payload, dest)
		if err == nil {
			return nil
		}
		if retryAfter <= 0 || attempt > 0 {
			return err
		}

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, dest any) (time.Duration, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		var limited struct {
			RetryAfter float64 `json:"retry_after"`
		}
		json.NewDecoder(resp.Body).Decode(&limited)
		wait := time.Duration(limited.RetryAfter * float64(time.Second))
		if wait <= 0 {
			wait = time.Second
		}
		return wait, &APIError{Status: resp.StatusCode, Message: "rate limited"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		json.Unmarshal(data, apiErr)
		return 0, apiErr
	}

	if dest == nil {
		io.Copy(io.Discard, resp.Body)
		return 0, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return 0, nil
}
