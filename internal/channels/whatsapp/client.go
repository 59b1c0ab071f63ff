package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/inving/dispatch/internal/channels"
)

const defaultHTTPTimeout = 10 * time.Second

// Client sends messages through the WhatsApp gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client with the standard outbound timeout.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetHTTPClient overrides the HTTP client (useful for testing).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Send posts a single message to the given phone number. The gateway takes
// the number and message as query parameters and authenticates via header.
func (c *Client) Send(ctx context.Context, number, message string) error {
	endpoint := fmt.Sprintf("%s/api/send?%s", c.baseURL, url.Values{
		"number":  {number},
		"message": {message},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return channels.Error{Channel: "whatsapp", Value: number, Message: err.Error()}
	}
	req.Header.Set("x-whatsapp-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return channels.Error{Channel: "whatsapp", Value: number, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return channels.Error{
			Channel: "whatsapp",
			Value:   number,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}
	return nil
}
