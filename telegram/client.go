package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

const maxTopicName = 128

// Client posts runway threads as forum topics in a Telegram supergroup.
type Client struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	limiter   *rate.Limiter
	retryUnit time.Duration
}

// Option configures a Client.
type Option func(*Client)

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

// NewClient creates a client that opens topics in the forum chat chatID.
func NewClient(api *tgbotapi.BotAPI, chatID int64, opts ...Option) *Client {
	// Telegram allows about 20 messages per minute in a group.
	c := &Client{
		api:       api,
		chatID:    chatID,
		limiter:   rate.NewLimiter(rate.Every(3*time.Second), 1),
		retryUnit: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateThread creates a forum topic and returns its message thread ID.
func (c *Client) CreateThread(ctx context.Context, name string) (string, error) {
	if len([]rune(name)) > maxTopicName {
		name = string([]rune(name)[:maxTopicName])
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", c.chatID)
	params["name"] = name

	resp, err := c.request(ctx, "createForumTopic", params)
	if err != nil {
		return "", fmt.Errorf("create forum topic: %w", err)
	}

	var topic struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	if err := json.Unmarshal(resp.Result, &topic); err != nil {
		return "", fmt.Errorf("decode forum topic: %w", err)
	}
	if topic.MessageThreadID == 0 {
		return "", fmt.Errorf("create forum topic: missing message_thread_id")
	}
	return strconv.FormatInt(topic.MessageThreadID, 10), nil
}

// PostMessage sends content into the topic threadID.
func (c *Client) PostMessage(ctx context.Context, threadID, content string) error {
	id, err := strconv.ParseInt(threadID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid thread id %q: %w", threadID, err)
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", c.chatID)
	params.AddNonZero64("message_thread_id", id)
	params["text"] = content

	if _, err := c.request(ctx, "sendMessage", params); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// request sends one API call, retrying once after the delay Telegram asks for
// on flood control.
func (c *Client) request(ctx context.Context, method string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}

		resp, err := c.api.MakeRequest(method, params)
		if err == nil {
			return resp, nil
		}

		var apiErr *tgbotapi.Error
		if attempt > 0 || !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 {
			return nil, err
		}

		timer := time.NewTimer(time.Duration(apiErr.RetryAfter) * c.retryUnit)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
