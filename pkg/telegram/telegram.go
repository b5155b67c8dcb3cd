// Package telegram wraps the Telegram Bot API client used to resolve
// usernames to account ids.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// User is a Telegram account resolved through the Bot API.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// API resolves Telegram usernames. A nil User with a nil error means the
// username does not exist (or is not a private account).
type API interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// LookupRecorder observes Bot API lookup outcomes. Result is one of
// "found", "not_found" or "error".
type LookupRecorder interface {
	ObserveTelegramLookup(result string, d time.Duration)
}

// Client implements API over the Bot API getChat method.
type Client struct {
	bot     *bot.Bot
	metrics LookupRecorder
}

// NewClient creates a Bot API client. Extra options are forwarded to the
// underlying bot constructor (tests use bot.WithServerURL).
func NewClient(token string, opts ...bot.Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}

	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot client: %w", err)
	}
	return &Client{bot: b}, nil
}

// WithMetrics attaches a lookup recorder and returns the client.
func (c *Client) WithMetrics(m LookupRecorder) *Client {
	c.metrics = m
	return c
}

func (c *Client) observe(result string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveTelegramLookup(result, time.Since(start))
	}
}

// GetUserByUsername looks up a username via getChat. Telegram answers
// "chat not found" with HTTP 400, which is a negative result here, not an
// error. Group and channel usernames resolve but are not users.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("telegram: username cannot be empty")
	}

	start := time.Now()
	chat, err := c.bot.GetChat(ctx, &bot.GetChatParams{
		ChatID: "@" + strings.TrimPrefix(username, "@"),
	})
	if err != nil {
		if errors.Is(err, bot.ErrorBadRequest) || errors.Is(err, bot.ErrorNotFound) {
			c.observe("not_found", start)
			return nil, nil
		}
		c.observe("error", start)
		return nil, fmt.Errorf("telegram: getChat %q: %w", username, err)
	}

	if chat.Type != models.ChatTypePrivate {
		c.observe("not_found", start)
		return nil, nil
	}
	c.observe("found", start)

	return &User{
		ID:        chat.ID,
		Username:  chat.Username,
		FirstName: chat.FirstName,
		LastName:  chat.LastName,
	}, nil
}
