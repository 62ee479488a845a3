package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tripdesk/concierge/pkg/logging"
)

// VisaCheck answers visa_check calls via the Sherpa trip-requirements API and
// flattens the response into a readable summary the assistant can relay.
type VisaCheck struct {
	baseURL     string
	affiliateID string
	apiKey      string
	httpClient  *http.Client
	logger      *logging.Logger
}

// NewVisaCheck creates the visa_check adapter.
func NewVisaCheck(baseURL, affiliateID, apiKey string, client *http.Client, logger *logging.Logger) *VisaCheck {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VisaCheck{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		affiliateID: affiliateID,
		apiKey:      apiKey,
		httpClient:  client,
		logger:      logger,
	}
}

// Name implements Adapter.
func (v *VisaCheck) Name() string { return "visa_check" }

type sherpaTravelNode struct {
	Type        string           `json:"type"`
	AirportCode string           `json:"airportCode"`
	Departure   *sherpaTimePoint `json:"departure,omitempty"`
	Arrival     *sherpaTimePoint `json:"arrival,omitempty"`
}

type sherpaTimePoint struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type sherpaTrip struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Locale    string `json:"locale"`
			Traveller struct {
				Passports      []string `json:"passports"`
				TravelPurposes []string `json:"travelPurposes"`
			} `json:"traveller"`
			TravelNodes []sherpaTravelNode `json:"travelNodes"`
		} `json:"attributes"`
	} `json:"data"`
}

type sherpaResponse struct {
	Data struct {
		Attributes struct {
			InformationGroups []struct {
				Name      string `json:"name"`
				Headline  string `json:"headline"`
				Groupings []struct {
					Name        string `json:"name"`
					Enforcement string `json:"enforcement"`
					Data        []struct {
						ID string `json:"id"`
					} `json:"data"`
				} `json:"groupings"`
			} `json:"informationGroups"`
		} `json:"attributes"`
	} `json:"data"`
	Included []struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Description  string `json:"description"`
			LengthOfStay []struct {
				Text string `json:"text"`
			} `json:"lengthOfStay"`
			Sources []struct {
				URL string `json:"url"`
			} `json:"sources"`
		} `json:"attributes"`
	} `json:"included"`
}

// Invoke implements Adapter.
func (v *VisaCheck) Invoke(ctx context.Context, inv Invocation) (string, error) {
	passportCountry := optionalStringArg(inv.Args, "passportCountry")
	departureDate := optionalStringArg(inv.Args, "departureDate")
	arrivalDate := optionalStringArg(inv.Args, "arrivalDate")
	departureAirport := optionalStringArg(inv.Args, "departureAirport")
	arrivalAirport := optionalStringArg(inv.Args, "arrivalAirport")
	travelPurpose := optionalStringArg(inv.Args, "travelPurpose")
	if passportCountry == "" || departureAirport == "" || arrivalAirport == "" {
		return "", fmt.Errorf("functions: visa_check requires passportCountry, departureAirport and arrivalAirport")
	}
	if travelPurpose == "" {
		travelPurpose = "tourism"
	}

	var transitCities []string
	if raw, ok := inv.Args["transitCities"].([]any); ok {
		for _, c := range raw {
			if s, ok := c.(string); ok && s != "" {
				transitCities = append(transitCities, s)
			}
		}
	}

	trip := v.buildTrip(passportCountry, departureDate, arrivalDate, departureAirport, arrivalAirport, transitCities, travelPurpose)
	payload, err := json.Marshal(trip)
	if err != nil {
		return "", fmt.Errorf("functions: failed to encode visa request: %w", err)
	}

	endpoint := v.baseURL + "/v3/trips?include=restriction,procedure"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("functions: failed to build visa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("x-affiliate-id", v.affiliateID)
	req.Header.Set("x-api-key", v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("functions: visa check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("functions: visa backend returned status %d", resp.StatusCode)
	}

	var parsed sherpaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("functions: failed to decode visa response: %w", err)
	}
	return summarizeVisaRequirements(parsed), nil
}

func (v *VisaCheck) buildTrip(passportCountry, departureDate, arrivalDate, departureAirport, arrivalAirport string, transitCities []string, travelPurpose string) sherpaTrip {
	var trip sherpaTrip
	trip.Data.Type = "TRIP"
	trip.Data.Attributes.Locale = "en-US"
	trip.Data.Attributes.Traveller.Passports = []string{passportCountry}
	trip.Data.Attributes.Traveller.TravelPurposes = []string{strings.ToUpper(travelPurpose)}

	nodes := []sherpaTravelNode{{
		Type:        "ORIGIN",
		AirportCode: departureAirport,
		Departure:   &sherpaTimePoint{Date: departureDate, Time: "12:59"},
	}}
	for _, city := range transitCities {
		nodes = append(nodes, sherpaTravelNode{
			Type:        "TRANSIT",
			AirportCode: city,
			Departure:   &sherpaTimePoint{Date: departureDate, Time: "00:00"},
			Arrival:     &sherpaTimePoint{Date: arrivalDate, Time: "00:00"},
		})
	}
	nodes = append(nodes, sherpaTravelNode{
		Type:        "DESTINATION",
		AirportCode: arrivalAirport,
		Arrival:     &sherpaTimePoint{Date: arrivalDate, Time: "12:59"},
	})
	trip.Data.Attributes.TravelNodes = nodes
	return trip
}

// summarizeVisaRequirements walks the visa information groups and produces the
// headline, per-destination enforcement, length of stay, detail text and
// source links in one message.
func summarizeVisaRequirements(resp sherpaResponse) string {
	var msg strings.Builder
	detailIDs := map[string]string{} // detail id -> destination name

	for _, group := range resp.Data.Attributes.InformationGroups {
		if group.Name != "Visa Requirements" {
			continue
		}
		msg.WriteString("Summary: " + group.Headline + "\n")
		for _, g := range group.Groupings {
			if len(g.Data) > 0 {
				detailIDs[g.Data[0].ID] = g.Name
			}
			msg.WriteString(fmt.Sprintf("Enforcement to %s: %s\n", g.Name, g.Enforcement))
		}
	}

	var details strings.Builder
	var sources strings.Builder
	for _, inc := range resp.Included {
		if dest, ok := detailIDs[inc.ID]; ok {
			details.WriteString(inc.Attributes.Description + "\n")
			if len(inc.Attributes.LengthOfStay) > 0 {
				msg.WriteString(fmt.Sprintf("Length of stay in %s: %s\n", dest, inc.Attributes.LengthOfStay[0].Text))
			}
			if len(inc.Attributes.Sources) > 0 {
				sources.WriteString("\nFor more information: " + inc.Attributes.Sources[0].URL)
			}
			continue
		}
		if inc.Type == "RESTRICTION" {
			details.WriteString(inc.Attributes.Description + "\n")
		}
	}

	if details.Len() > 0 {
		msg.WriteString("\nDetails:\n" + details.String())
	}
	msg.WriteString(sources.String())
	return msg.String()
}
