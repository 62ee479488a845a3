package functions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tripdesk/concierge/pkg/logging"
)

const defaultFlightStatsBaseURL = "https://api.flightstats.com"

// FlightSchedule answers flight_schedule calls using the flightstats
// scheduled-departures API.
type FlightSchedule struct {
	baseURL    string
	appID      string
	appKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewFlightSchedule creates the flight_schedule adapter.
func NewFlightSchedule(baseURL, appID, appKey string, client *http.Client, logger *logging.Logger) *FlightSchedule {
	if baseURL == "" {
		baseURL = defaultFlightStatsBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FlightSchedule{
		baseURL:    baseURL,
		appID:      appID,
		appKey:     appKey,
		httpClient: client,
		logger:     logger,
	}
}

// Name implements Adapter.
func (f *FlightSchedule) Name() string { return "flight_schedule" }

// Invoke implements Adapter.
func (f *FlightSchedule) Invoke(ctx context.Context, inv Invocation) (string, error) {
	departure, err := stringArg(inv.Args, "departure_airport")
	if err != nil {
		return "", err
	}
	arrival, err := stringArg(inv.Args, "arrival_airport")
	if err != nil {
		return "", err
	}
	year, err := intArg(inv.Args, "year")
	if err != nil {
		return "", err
	}
	month, err := intArg(inv.Args, "month")
	if err != nil {
		return "", err
	}
	day, err := intArg(inv.Args, "day")
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/flex/schedules/rest/v1/json/from/%s/to/%s/departing/%d/%d/%d",
		f.baseURL, url.PathEscape(departure), url.PathEscape(arrival), year, month, day)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("functions: failed to build schedule request: %w", err)
	}
	q := req.URL.Query()
	q.Set("appId", f.appID)
	q.Set("appKey", f.appKey)
	req.URL.RawQuery = q.Encode()

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("functions: flight schedule lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("functions: flight schedule backend returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("functions: failed to read schedule response: %w", err)
	}

	f.logger.Debug("flight schedule lookup completed",
		"from", departure,
		"to", arrival,
		"date", fmt.Sprintf("%04d-%02d-%02d", year, month, day),
	)
	return string(body), nil
}
