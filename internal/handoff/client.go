package handoff

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

	"github.com/tripdesk/concierge/pkg/logging"
)

// Client talks to the live-chat backend that hosts consultant conversations.
// While a client has an active consultant chat, inbound messages are routed
// there instead of to the assistant.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a live-chat client. An empty baseURL yields a client
// whose Status always reports no active chat.
func NewClient(baseURL string, client *http.Client, logger *logging.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
		logger:     logger,
	}
}

// ChatStatus describes whether a client currently has a consultant chat open.
type ChatStatus struct {
	Active bool
	ChatID string
}

// Status looks up the consultant-chat state for a client email. Lookup
// failures are reported as inactive so the assistant path stays available.
func (c *Client) Status(ctx context.Context, email string) (ChatStatus, error) {
	if c.baseURL == "" || email == "" {
		return ChatStatus{}, nil
	}

	endpoint := fmt.Sprintf("%s/user/findUserByEmail/%s", c.baseURL, url.PathEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ChatStatus{}, fmt.Errorf("handoff: failed to build status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("consultant chat status lookup failed", "error", err)
		return ChatStatus{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ChatStatus{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("consultant chat status lookup returned error", "status", resp.StatusCode)
		return ChatStatus{}, nil
	}

	var body struct {
		ChatStatus string `json:"chatStatus"`
		ChatID     string `json:"chatId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.Warn("consultant chat status response is malformed", "error", err)
		return ChatStatus{}, nil
	}
	return ChatStatus{
		Active: strings.EqualFold(body.ChatStatus, "active"),
		ChatID: body.ChatID,
	}, nil
}

// Forward relays one client message into an active consultant chat.
func (c *Client) Forward(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chatId":  chatID,
		"message": text,
		"sender":  "client",
	})
	if err != nil {
		return fmt.Errorf("handoff: failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/message", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("handoff: failed to build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("handoff: failed to forward message: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("handoff: live-chat backend returned status %d", resp.StatusCode)
	}
	return nil
}
