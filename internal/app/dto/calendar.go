package dto

import (
	"time"

	"staykeeper/internal/domain/availability"
	"staykeeper/internal/domain/shared/daterange"
)

const dateLayout = "2006-01-02"

// DateRange renders both ends as calendar dates.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func MapRange(r daterange.DateRange) DateRange {
	return DateRange{From: r.From.Format(dateLayout), To: r.To.Format(dateLayout)}
}

type Reservation struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	Range     DateRange `json:"range"`
	CreatedAt time.Time `json:"created_at"`
}

func MapReservation(r availability.Reservation) Reservation {
	return Reservation{
		ID:        string(r.ID),
		ListingID: r.ListingID,
		Range:     MapRange(r.Range),
		CreatedAt: r.CreatedAt,
	}
}

type CalendarBlock struct {
	Range     DateRange `json:"range"`
	CreatedAt time.Time `json:"created_at"`
}

type Calendar struct {
	ListingID    string          `json:"listing_id"`
	Reservations []Reservation   `json:"reservations"`
	Blocks       []CalendarBlock `json:"blocks"`
}

func MapCalendar(cal *availability.Calendar) Calendar {
	if cal == nil {
		return Calendar{Reservations: []Reservation{}, Blocks: []CalendarBlock{}}
	}
	out := Calendar{
		ListingID:    cal.ListingID,
		Reservations: make([]Reservation, 0),
		Blocks:       make([]CalendarBlock, 0),
	}
	for _, r := range cal.Reservations() {
		out.Reservations = append(out.Reservations, MapReservation(r))
	}
	for _, b := range cal.Blocks() {
		out.Blocks = append(out.Blocks, CalendarBlock{Range: MapRange(b.Range), CreatedAt: b.CreatedAt})
	}
	return out
}

// BookingResult carries the id of the accepted reservation.
type BookingResult struct {
	BookedAvailabilityID string    `json:"bookedAvailabilityId"`
	ListingID            string    `json:"listing_id"`
	Range                DateRange `json:"range"`
}

type Availability struct {
	ListingID string    `json:"listing_id"`
	Range     DateRange `json:"range"`
	Available bool      `json:"available"`
}
