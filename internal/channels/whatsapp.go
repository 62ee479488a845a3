package channels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tripdesk/concierge/pkg/logging"
)

const twilioAPIBaseURL = "https://api.twilio.com"

// WhatsAppTransport sends replies through the Twilio messages API.
type WhatsAppTransport struct {
	baseURL    string
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewWhatsAppTransport creates the WhatsApp reply transport. fromNumber is
// the provisioned sender in E.164 form.
func NewWhatsAppTransport(baseURL, accountSID, authToken, fromNumber string, client *http.Client, logger *logging.Logger) *WhatsAppTransport {
	if baseURL == "" {
		baseURL = twilioAPIBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppTransport{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		httpClient: client,
		logger:     logger,
	}
}

// Channel implements Transport.
func (t *WhatsAppTransport) Channel() string { return ChannelWhatsApp }

// Send implements Transport. originID is the sender's WhatsApp id, a bare
// E.164 number without the whatsapp: prefix.
func (t *WhatsAppTransport) Send(ctx context.Context, originID, text string) error {
	form := url.Values{}
	form.Set("From", "whatsapp:"+t.fromNumber)
	form.Set("To", "whatsapp:+"+strings.TrimPrefix(originID, "+"))
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("channels: failed to build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("channels: whatsapp delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("channels: whatsapp provider returned status %d", resp.StatusCode)
	}
	return nil
}
