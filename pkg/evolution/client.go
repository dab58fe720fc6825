// Package evolution talks to the Evolution API, the WhatsApp gateway that
// delivers inbound messages to the webhook and sends outbound text.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the Evolution API.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client. A zero timeout means 10 seconds.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText sends a text message from instance to the given phone number.
func (c *Client) SendText(ctx context.Context, apiURL, token, instance, number, text string) error {
	body, err := json.Marshal(sendTextRequest{
		Number: strings.TrimPrefix(number, "+"),
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	endpoint := strings.TrimRight(apiURL, "/") + "/message/sendText/" + url.PathEscape(instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling Evolution API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Evolution API returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
