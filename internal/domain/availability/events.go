package availability

import (
	"time"

	"staykeeper/internal/domain/shared/daterange"
)

type Reserved struct {
	ListingID     string
	ReservationID ReservationID
	Range         daterange.DateRange
	At            time.Time
}

func (e Reserved) EventName() string     { return "calendar.reserved" }
func (e Reserved) AggregateID() string   { return e.ListingID }
func (e Reserved) OccurredAt() time.Time { return e.At }

type Blocked struct {
	ListingID string
	Range     daterange.DateRange
	At        time.Time
}

func (e Blocked) EventName() string     { return "calendar.blocked" }
func (e Blocked) AggregateID() string   { return e.ListingID }
func (e Blocked) OccurredAt() time.Time { return e.At }

type OverbookingPrevented struct {
	ListingID string
	Range     daterange.DateRange
	At        time.Time
}

func (e OverbookingPrevented) EventName() string     { return "calendar.overbooking_prevented" }
func (e OverbookingPrevented) AggregateID() string   { return e.ListingID }
func (e OverbookingPrevented) OccurredAt() time.Time { return e.At }
