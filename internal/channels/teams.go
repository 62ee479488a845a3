package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tripdesk/concierge/pkg/logging"
)

const botFrameworkTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"

// TeamsTransport posts reply activities to a Teams conversation through the
// Bot Framework connector. Access tokens come from the client-credentials
// grant and are cached until shortly before expiry.
type TeamsTransport struct {
	serviceURL   string
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	logger       *logging.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewTeamsTransport creates the Teams reply transport.
func NewTeamsTransport(serviceURL, clientID, clientSecret string, client *http.Client, logger *logging.Logger) *TeamsTransport {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TeamsTransport{
		serviceURL:   strings.TrimSuffix(serviceURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     botFrameworkTokenURL,
		httpClient:   client,
		logger:       logger,
	}
}

// Channel implements Transport.
func (t *TeamsTransport) Channel() string { return ChannelTeams }

// Send implements Transport. originID is the Teams conversation id.
func (t *TeamsTransport) Send(ctx context.Context, originID, text string) error {
	token, err := t.token(ctx)
	if err != nil {
		return err
	}

	activity := map[string]string{
		"type": "message",
		"text": text,
	}
	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("channels: failed to encode teams activity: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities", t.serviceURL, url.PathEscape(originID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("channels: failed to build teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("channels: teams delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("channels: teams connector returned status %d", resp.StatusCode)
	}
	return nil
}

func (t *TeamsTransport) token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && time.Now().Before(t.expiresAt) {
		return t.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)
	form.Set("scope", "https://api.botframework.com/.default")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("channels: failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("channels: bot framework token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("channels: bot framework token endpoint returned status %d", resp.StatusCode)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", fmt.Errorf("channels: failed to decode token response: %w", err)
	}

	t.accessToken = grant.AccessToken
	t.expiresAt = time.Now().Add(time.Duration(grant.ExpiresIn)*time.Second - time.Minute)
	return t.accessToken, nil
}
