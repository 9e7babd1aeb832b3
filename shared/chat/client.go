// Package chat is the outbound client for the chat platform's messaging
// API. It posts immediate warnings and the daily digest thread.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"emotion-pulse/backend/pkg/logger"
)

// Notifier is the surface the worker and digest job depend on.
type Notifier interface {
	// PostMessage posts text to a channel. A non-empty threadTS posts into
	// that thread. Returns the ts of the created message.
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)
}

// Client talks to the platform's chat.postMessage endpoint with a bot
// credential.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
	log     *logger.Logger
}

// NewClient creates a messaging client. baseURL is the API root
// (https://slack.com/api in production, an httptest server in tests).
func NewClient(baseURL, token string, log *logger.Logger) *Client {
	return &Client{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		token:   token,
		log:     log,
	}
}

type postMessageRequest struct {
	Channel  string  `json:"channel"`
	ThreadTS string  `json:"thread_ts,omitempty"`
	Blocks   []block `json:"blocks"`
}

type block struct {
	Type string    `json:"type"`
	Text blockText `json:"text"`
}

type blockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error,omitempty"`
}

// PostMessage implements Notifier.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	reqBody := postMessageRequest{
		Channel:  channelID,
		ThreadTS: threadTS,
		Blocks: []block{
			{Type: "section", Text: blockText{Type: "mrkdwn", Text: text}},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal postMessage request: %w", err)
	}

	url := c.baseURL + "/chat.postMessage"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create postMessage request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("postMessage request failed: %w", err)
	}
	defer httpResp.Body.Close()

	var resp postMessageResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode postMessage response: %w", err)
	}
	if !resp.OK {
		return "", fmt.Errorf("postMessage rejected: %s", resp.Error)
	}

	c.log.Debug("message posted", "channel", channelID, "ts", resp.TS)
	return resp.TS, nil
}
