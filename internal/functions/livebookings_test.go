package functions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLiveBookingsArrangerGetsReferencePrompt(t *testing.T) {
	adapter := NewLiveBookings(nil, nil)

	out, err := adapter.Invoke(context.Background(), Invocation{
		Args: map[string]any{"role": "arranger", "email": "x@y.com", "debtorId": "65668"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != arrangerNotice {
		t.Fatalf("expected arranger notice, got %q", out)
	}
}

func TestLiveBookingsFiltersPastTrips(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"pnr_loc", "agency", "book_date", "first_flight_date", "last_flight_date",
		"air_cities", "air_carriers",
	}).
		AddRow("OLD001", "Acme Travel", now.AddDate(0, -2, 0), now.AddDate(0, -1, 0), now.AddDate(0, -1, 5), "SIN-BKK", "SQ").
		AddRow("NEW002", "Acme Travel", now.AddDate(0, 0, -3), now.AddDate(0, 1, 0), now.AddDate(0, 1, 7), "SIN-NRT", "NH")

	mock.ExpectQuery("SELECT pnr_loc, agency").
		WithArgs("65668", "ada@example.com").
		WillReturnRows(rows)

	adapter := NewLiveBookings(db, nil)
	adapter.now = func() time.Time { return now }

	out, err := adapter.Invoke(context.Background(), Invocation{
		Args: map[string]any{"role": "traveller", "email": "ada@example.com", "debtorId": "65668"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "OLD001") {
		t.Fatalf("expected past booking to be filtered out, got %q", out)
	}
	if !strings.Contains(out, "NEW002") {
		t.Fatalf("expected upcoming booking in output, got %q", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLiveBookingsNoUpcomingTrips(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT pnr_loc, agency").
		WithArgs("65668", "ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"pnr_loc", "agency", "book_date", "first_flight_date", "last_flight_date",
			"air_cities", "air_carriers",
		}))

	adapter := NewLiveBookings(db, nil)

	out, err := adapter.Invoke(context.Background(), Invocation{
		Args: map[string]any{"role": "traveller", "email": "ada@example.com", "debtorId": "65668"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "No upcoming bookings found." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLiveBookingsMissingRole(t *testing.T) {
	adapter := NewLiveBookings(nil, nil)
	if _, err := adapter.Invoke(context.Background(), Invocation{Args: map[string]any{}}); err == nil {
		t.Fatal("expected error when role argument is missing")
	}
}
