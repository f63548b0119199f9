package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"staykeeper/internal/domain/shared/daterange"
	"staykeeper/internal/domain/shared/events"
)

var (
	ErrConflict             = errors.New("availability: range conflicts with an existing reservation or block")
	ErrReservationIDMissing = errors.New("availability: reservation id is required")
	ErrDuplicateReservation = errors.New("availability: reservation id already used")
)

type ReservationID string

// Reservation is an accepted booking. It is never mutated after creation.
type Reservation struct {
	ID        ReservationID
	ListingID string
	Range     daterange.DateRange
	CreatedAt time.Time
}

// BlockedRange is an owner-declared window during which nothing can be booked.
type BlockedRange struct {
	Range     daterange.DateRange
	CreatedAt time.Time
}

// Calendar is the availability of a single listing. Reservations never
// conflict with each other and a reservation is never admitted over a block.
// Both collections only grow.
type Calendar struct {
	ListingID string

	reservations []Reservation
	blocks       []BlockedRange
	reserved     daterange.Set
	blocked      daterange.Set
	ids          map[ReservationID]struct{}

	events.EventRecorder
}

func NewCalendar(listingID string) *Calendar {
	return &Calendar{ListingID: listingID, ids: make(map[ReservationID]struct{})}
}

// Restore rebuilds a calendar from persisted rows without recording events.
func Restore(listingID string, reservations []Reservation, blocks []BlockedRange) *Calendar {
	c := NewCalendar(listingID)
	for _, r := range reservations {
		c.appendReservation(r)
	}
	for _, b := range blocks {
		c.appendBlock(b)
	}
	return c
}

// IsFree reports whether r touches neither a reservation nor a block.
func (c *Calendar) IsFree(r daterange.DateRange) bool {
	return !c.reserved.Overlaps(r) && !c.blocked.Overlaps(r)
}

// Reserve admits r under id, or fails with ErrConflict leaving the calendar untouched.
func (c *Calendar) Reserve(r daterange.DateRange, id ReservationID, now time.Time) (Reservation, error) {
	if err := r.Validate(); err != nil {
		return Reservation{}, err
	}
	if strings.TrimSpace(string(id)) == "" {
		return Reservation{}, ErrReservationIDMissing
	}
	if _, used := c.ids[id]; used {
		return Reservation{}, fmt.Errorf("%w: %s", ErrDuplicateReservation, id)
	}
	if !c.IsFree(r) {
		c.Record(OverbookingPrevented{ListingID: c.ListingID, Range: r, At: now.UTC()})
		return Reservation{}, ErrConflict
	}
	res := Reservation{ID: id, ListingID: c.ListingID, Range: r, CreatedAt: now.UTC()}
	c.appendReservation(res)
	c.Record(Reserved{ListingID: c.ListingID, ReservationID: id, Range: r, At: res.CreatedAt})
	return res, nil
}

// Block records r unconditionally. Earlier reservations inside r stay valid.
func (c *Calendar) Block(r daterange.DateRange, now time.Time) (BlockedRange, error) {
	if err := r.Validate(); err != nil {
		return BlockedRange{}, err
	}
	b := BlockedRange{Range: r, CreatedAt: now.UTC()}
	c.appendBlock(b)
	c.Record(Blocked{ListingID: c.ListingID, Range: r, At: b.CreatedAt})
	return b, nil
}

func (c *Calendar) Reservations() []Reservation {
	out := make([]Reservation, len(c.reservations))
	copy(out, c.reservations)
	return out
}

func (c *Calendar) Blocks() []BlockedRange {
	out := make([]BlockedRange, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Clone returns a deep copy without pending events.
func (c *Calendar) Clone() *Calendar {
	if c == nil {
		return nil
	}
	return Restore(c.ListingID, c.reservations, c.blocks)
}

func (c *Calendar) appendReservation(r Reservation) {
	if c.ids == nil {
		c.ids = make(map[ReservationID]struct{})
	}
	c.reservations = append(c.reservations, r)
	c.reserved.Add(r.Range)
	c.ids[r.ID] = struct{}{}
}

func (c *Calendar) appendBlock(b BlockedRange) {
	c.blocks = append(c.blocks, b)
	c.blocked.Add(b.Range)
}
