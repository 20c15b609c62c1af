/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package notify implements the collector's outbound alert channel: a
// small Telegram bot client posting staleness and shutdown messages.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	// maxMessagesPerSecond caps outbound Bot API calls regardless of the
	// application-level NotificationGate: Telegram itself throttles a bot
	// sending faster than about one message per second to a given chat.
	maxMessagesPerSecond = 1
)

// TelegramClient posts messages to a single chat via the Bot API's
// sendMessage method. It implements worker.Notifier.
type TelegramClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	token      string
	chatID     string
	log        logr.Logger
}

// NewTelegramClient creates a client for the given bot token and chat id.
// baseURL defaults to the public Bot API origin; tests override it to
// point at an httptest.Server.
func NewTelegramClient(token, chatID string, log logr.Logger) *TelegramClient {
	return &TelegramClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(maxMessagesPerSecond), maxMessagesPerSecond),
		baseURL:    "https://api.telegram.org",
		token:      token,
		chatID:     chatID,
		log:        log.WithName("notify.telegram"),
	}
}

// WithBaseURL overrides the Bot API origin, for tests.
func (c *TelegramClient) WithBaseURL(baseURL string) *TelegramClient {
	c.baseURL = baseURL
	return c
}

// Notify posts message to the configured chat: POST /bot<token>/sendMessage
// with chat_id and text form fields, after waiting for a limiter token.
func (c *TelegramClient) Notify(ctx context.Context, message string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: wait for rate token: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)

	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notify: telegram returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
