package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tripdesk/concierge/pkg/logging"
)

// ItineraryLookup answers get_itinerary calls against the cancellation
// backend, which returns the itinerary text for a PNR along with whether it
// can still be cancelled.
type ItineraryLookup struct {
	url        string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewItineraryLookup creates the get_itinerary adapter.
func NewItineraryLookup(url string, client *http.Client, logger *logging.Logger) *ItineraryLookup {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ItineraryLookup{url: url, httpClient: client, logger: logger}
}

// Name implements Adapter.
func (l *ItineraryLookup) Name() string { return "get_itinerary" }

// Invoke implements Adapter.
func (l *ItineraryLookup) Invoke(ctx context.Context, inv Invocation) (string, error) {
	pnr, err := stringArg(inv.Args, "PNR")
	if err != nil {
		return "", err
	}

	payload := map[string]string{
		"PNR":    pnr,
		"INTENT": "check_if_cancel_possible",
	}
	if inv.Session != nil {
		payload["LASTNAME"] = inv.Session.Metadata["lastName"]
		payload["USER_ROLE"] = inv.Session.Metadata["roleName"]
		payload["EMAIL"] = inv.Session.Metadata["email"]
		payload["DEBTORID"] = inv.Session.Metadata["debtorId"]
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("functions: failed to encode itinerary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("functions: failed to build itinerary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("functions: itinerary lookup failed: %w", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("functions: failed to read itinerary response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("functions: itinerary backend returned status %d", resp.StatusCode)
	}

	l.logger.Debug("itinerary lookup completed", "pnr", pnr, "bytes", len(text))
	return string(text), nil
}
