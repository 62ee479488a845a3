package functions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tripdesk/concierge/pkg/logging"
)

// LiveBookings answers get_live_bookings calls from the bookings warehouse.
// Only travellers get a direct lookup; arrangers are asked for a reference
// instead, since their profile can span many travellers.
type LiveBookings struct {
	db     *sql.DB
	now    func() time.Time
	logger *logging.Logger
}

// NewLiveBookings creates the get_live_bookings adapter.
func NewLiveBookings(db *sql.DB, logger *logging.Logger) *LiveBookings {
	if logger == nil {
		logger = logging.Default()
	}
	return &LiveBookings{db: db, now: time.Now, logger: logger}
}

// Name implements Adapter.
func (b *LiveBookings) Name() string { return "get_live_bookings" }

const arrangerNotice = "You are listed as a Travel Arranger in your profile. Please enter the Agency Reference or PNR."

// BookingRecord is one live booking row surfaced to the assistant.
type BookingRecord struct {
	PNR             string `json:"pnr"`
	Agency          string `json:"agency"`
	BookDate        string `json:"book_date"`
	FirstFlightDate string `json:"first_flight_date"`
	LastFlightDate  string `json:"last_flight_date"`
	AirCities       string `json:"air_cities"`
	AirCarriers     string `json:"air_carriers"`
}

// Invoke implements Adapter.
func (b *LiveBookings) Invoke(ctx context.Context, inv Invocation) (string, error) {
	role, err := stringArg(inv.Args, "role")
	if err != nil {
		return "", err
	}
	if role != "traveller" {
		return arrangerNotice, nil
	}
	email, err := stringArg(inv.Args, "email")
	if err != nil {
		return "", err
	}
	debtorID, err := stringArg(inv.Args, "debtorId")
	if err != nil {
		return "", err
	}
	if b.db == nil {
		return "", fmt.Errorf("functions: bookings database not configured")
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT pnr_loc, agency, book_date, first_flight_date, last_flight_date,
		       air_cities, air_carriers
		FROM live_bookings
		WHERE company_id = $1 AND email_traveler = $2
		ORDER BY first_flight_date ASC`,
		debtorID, email,
	)
	if err != nil {
		return "", fmt.Errorf("functions: bookings query failed: %w", err)
	}
	defer rows.Close()

	today := b.now().Truncate(24 * time.Hour)
	var bookings []BookingRecord
	for rows.Next() {
		var (
			rec                   BookingRecord
			bookDate              sql.NullTime
			firstFlight           sql.NullTime
			lastFlight            sql.NullTime
			agency, cities, carrs sql.NullString
		)
		if err := rows.Scan(&rec.PNR, &agency, &bookDate, &firstFlight, &lastFlight, &cities, &carrs); err != nil {
			return "", fmt.Errorf("functions: failed to scan booking row: %w", err)
		}
		// Past trips are noise for a live-booking question.
		if !lastFlight.Valid || lastFlight.Time.Before(today) {
			continue
		}
		rec.Agency = agency.String
		rec.AirCities = cities.String
		rec.AirCarriers = carrs.String
		if bookDate.Valid {
			rec.BookDate = bookDate.Time.Format(time.RFC3339)
		}
		if firstFlight.Valid {
			rec.FirstFlightDate = firstFlight.Time.Format(time.RFC3339)
		}
		rec.LastFlightDate = lastFlight.Time.Format(time.RFC3339)
		bookings = append(bookings, rec)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("functions: bookings row iteration failed: %w", err)
	}

	b.logger.Debug("live bookings lookup completed", "debtor_id", debtorID, "count", len(bookings))
	if len(bookings) == 0 {
		return "No upcoming bookings found.", nil
	}
	return EncodeResult(bookings), nil
}
