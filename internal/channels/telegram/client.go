package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/inving/dispatch/internal/channels"
)

const defaultHTTPTimeout = 10 * time.Second

// Client sends messages via the Telegram Bot API.
type Client struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
}

func NewClient(baseURL, botToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		botToken:   botToken,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetHTTPClient overrides the HTTP client (useful for testing).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// Send delivers a text message to a chat. The chat id is the additional
// value bound to the contact channel during onboarding.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	value := fmt.Sprintf("%d", chatID)

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return channels.Error{Channel: "telegram", Value: value, Message: err.Error()}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return channels.Error{Channel: "telegram", Value: value, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return channels.Error{Channel: "telegram", Value: value, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return channels.Error{
			Channel: "telegram",
			Value:   value,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}
	return nil
}
