package listings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"staykeeper/internal/domain/availability"
	"staykeeper/internal/domain/shared/daterange"
	"staykeeper/internal/domain/shared/events"
)

var (
	ErrNotFound          = errors.New("listings: listing not found")
	ErrAlreadyDeleted    = errors.New("listings: listing already deleted")
	ErrNotPublished      = errors.New("listings: listing is not published")
	ErrIncompleteListing = errors.New("listings: listing is incomplete")
	ErrConcurrentUpdate  = errors.New("listings: concurrent update detected")
	ErrIDRequired        = errors.New("listings: id is required")
	ErrOwnerRequired     = errors.New("listings: owner is required")
	ErrTitleRequired     = errors.New("listings: title must not be blank")
	ErrInvalidPrice      = errors.New("listings: price must be positive with a 3-letter currency")
	ErrInvalidLocation   = errors.New("listings: location is out of range")
	ErrInvalidFloorPlan  = errors.New("listings: floor plan counts must be non-negative")
	ErrInvalidPhoto      = errors.New("listings: photo url must not be blank")
	ErrDuplicatePhoto    = errors.New("listings: photo url listed twice")
)

type ListingID string
type OwnerID string

type ListingState string

const (
	StateDraft     ListingState = "DRAFT"
	StatePublished ListingState = "PUBLISHED"
	StateUnlisted  ListingState = "UNLISTED"
)

type FloorPlan struct {
	Guests    int
	Bedrooms  int
	Beds      int
	Bathrooms int
}

func (f FloorPlan) Complete() bool {
	return f.Guests > 0 && f.Beds > 0
}

func (f FloorPlan) valid() bool {
	return f.Guests >= 0 && f.Bedrooms >= 0 && f.Beds >= 0 && f.Bathrooms >= 0
}

type Price struct {
	AmountCents int64
	Currency    string
}

func (p Price) Complete() bool {
	return p.AmountCents > 0 && len(p.Currency) == 3
}

type Address struct {
	Street     string
	City       string
	Region     string
	PostalCode string
	Country    string
}

func (a Address) Complete() bool {
	return strings.TrimSpace(a.Street) != "" && strings.TrimSpace(a.City) != "" && strings.TrimSpace(a.Country) != ""
}

type GeoPoint struct {
	Lat float64
	Lon float64
}

func (g GeoPoint) Valid() bool {
	return !math.IsNaN(g.Lat) && !math.IsNaN(g.Lon) && g.Lat >= -90 && g.Lat <= 90 && g.Lon >= -180 && g.Lon <= 180
}

// Listing is the lifecycle aggregate. State changes only through Publish and
// Unlist; Deleted is terminal and orthogonal to State.
type Listing struct {
	ID          ListingID
	Owner       OwnerID
	State       ListingState
	Deleted     bool
	Title       string
	Description string
	FloorPlan   FloorPlan
	Price       Price
	Address     Address
	Location    *GeoPoint
	TypeID      string
	Amenities   []string
	Photos      []string
	Calendar    *availability.Calendar
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   time.Time
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
	ByOwner(ctx context.Context, owner OwnerID) ([]*Listing, error)
	ListActive(ctx context.Context) ([]*Listing, error)
}

type CreateParams struct {
	ID    ListingID
	Owner OwnerID
	Patch PatchParams
	Now   time.Time
}

// NewListing builds a DRAFT listing with an empty calendar.
func NewListing(params CreateParams) (*Listing, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.Owner)) == "" {
		return nil, ErrOwnerRequired
	}
	if err := params.Patch.validate(); err != nil {
		return nil, err
	}
	now := params.Now.UTC()
	l := &Listing{
		ID:        params.ID,
		Owner:     params.Owner,
		State:     StateDraft,
		Calendar:  availability.NewCalendar(string(params.ID)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	params.Patch.apply(l)
	l.Record(ListingCreated{ListingID: l.ID, Owner: l.Owner, At: now})
	return l, nil
}

// Publish moves DRAFT or UNLISTED to PUBLISHED once completeness holds.
// Publishing a PUBLISHED listing re-validates and otherwise does nothing.
func (l *Listing) Publish(ctx context.Context, completeness Completeness, now time.Time) error {
	if l.Deleted {
		return ErrAlreadyDeleted
	}
	if completeness == nil {
		completeness = CompletenessPolicy{}
	}
	if err := completeness.Check(ctx, l); err != nil {
		return err
	}
	if l.State == StatePublished {
		return nil
	}
	from := l.State
	l.State = StatePublished
	l.UpdatedAt = now.UTC()
	l.Record(ListingPublished{ListingID: l.ID, Owner: l.Owner, From: from, At: l.UpdatedAt})
	return nil
}

// Unlist blocks r on the calendar. A PUBLISHED listing becomes UNLISTED;
// DRAFT and UNLISTED keep their state.
func (l *Listing) Unlist(r daterange.DateRange, now time.Time) (availability.BlockedRange, error) {
	if l.Deleted {
		return availability.BlockedRange{}, ErrAlreadyDeleted
	}
	block, err := l.calendar().Block(r, now)
	if err != nil {
		return availability.BlockedRange{}, err
	}
	from := l.State
	if l.State == StatePublished {
		l.State = StateUnlisted
	}
	l.UpdatedAt = now.UTC()
	l.Record(ListingUnlisted{ListingID: l.ID, Range: r, From: from, To: l.State, At: l.UpdatedAt})
	return block, nil
}

// Reserve admits a booking for r. Only PUBLISHED listings accept bookings.
func (l *Listing) Reserve(r daterange.DateRange, id availability.ReservationID, now time.Time) (availability.Reservation, error) {
	if l.Deleted {
		return availability.Reservation{}, ErrAlreadyDeleted
	}
	if l.State != StatePublished {
		return availability.Reservation{}, ErrNotPublished
	}
	res, err := l.calendar().Reserve(r, id, now)
	if err != nil {
		return availability.Reservation{}, err
	}
	l.UpdatedAt = now.UTC()
	return res, nil
}

// IsFree reports calendar availability regardless of state.
func (l *Listing) IsFree(r daterange.DateRange) bool {
	return l.calendar().IsFree(r)
}

// Patch overwrites the provided fields. It never touches State.
func (l *Listing) Patch(params PatchParams, now time.Time) error {
	if l.Deleted {
		return ErrAlreadyDeleted
	}
	if err := params.validate(); err != nil {
		return err
	}
	if params.empty() {
		return nil
	}
	params.apply(l)
	l.UpdatedAt = now.UTC()
	l.Record(ListingUpdated{ListingID: l.ID, At: l.UpdatedAt})
	return nil
}

func (l *Listing) Delete(now time.Time) error {
	if l.Deleted {
		return ErrAlreadyDeleted
	}
	l.Deleted = true
	l.DeletedAt = now.UTC()
	l.UpdatedAt = l.DeletedAt
	l.Record(ListingDeleted{ListingID: l.ID, Owner: l.Owner, At: l.DeletedAt})
	return nil
}

// DrainEvents returns listing events followed by calendar events and clears both.
func (l *Listing) DrainEvents() []events.DomainEvent {
	out := l.Drain()
	if l.Calendar != nil {
		out = append(out, l.Calendar.Drain()...)
	}
	return out
}

// Clone deep-copies the aggregate without pending events.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	out := &Listing{
		ID:          l.ID,
		Owner:       l.Owner,
		State:       l.State,
		Deleted:     l.Deleted,
		Title:       l.Title,
		Description: l.Description,
		FloorPlan:   l.FloorPlan,
		Price:       l.Price,
		Address:     l.Address,
		TypeID:      l.TypeID,
		Amenities:   append([]string(nil), l.Amenities...),
		Photos:      append([]string(nil), l.Photos...),
		Calendar:    l.Calendar.Clone(),
		Version:     l.Version,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
		DeletedAt:   l.DeletedAt,
	}
	if l.Location != nil {
		loc := *l.Location
		out.Location = &loc
	}
	return out
}

func (l *Listing) calendar() *availability.Calendar {
	if l.Calendar == nil {
		l.Calendar = availability.NewCalendar(string(l.ID))
	}
	return l.Calendar
}

// PatchParams carries optional field updates; nil means "leave as is".
type PatchParams struct {
	Title       *string
	Description *string
	FloorPlan   *FloorPlan
	Price       *Price
	Address     *Address
	Location    *GeoPoint
	TypeID      *string
	Amenities   []string
	Photos      []string
}

func (p PatchParams) empty() bool {
	return p.Title == nil && p.Description == nil && p.FloorPlan == nil && p.Price == nil &&
		p.Address == nil && p.Location == nil && p.TypeID == nil && p.Amenities == nil && p.Photos == nil
}

func (p PatchParams) validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrTitleRequired
	}
	if p.Price != nil && (p.Price.AmountCents < 0 || (p.Price.Currency != "" && len(strings.TrimSpace(p.Price.Currency)) != 3)) {
		return ErrInvalidPrice
	}
	if p.Location != nil && !p.Location.Valid() {
		return ErrInvalidLocation
	}
	if p.FloorPlan != nil && !p.FloorPlan.valid() {
		return ErrInvalidFloorPlan
	}
	seen := make(map[string]struct{}, len(p.Photos))
	for _, photo := range p.Photos {
		photo = strings.TrimSpace(photo)
		if photo == "" {
			return ErrInvalidPhoto
		}
		if _, dup := seen[photo]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePhoto, photo)
		}
		seen[photo] = struct{}{}
	}
	return nil
}

func (p PatchParams) apply(l *Listing) {
	if p.Title != nil {
		l.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		l.Description = strings.TrimSpace(*p.Description)
	}
	if p.FloorPlan != nil {
		l.FloorPlan = *p.FloorPlan
	}
	if p.Price != nil {
		l.Price = Price{AmountCents: p.Price.AmountCents, Currency: strings.ToUpper(strings.TrimSpace(p.Price.Currency))}
	}
	if p.Address != nil {
		l.Address = *p.Address
	}
	if p.Location != nil {
		loc := *p.Location
		l.Location = &loc
	}
	if p.TypeID != nil {
		l.TypeID = strings.TrimSpace(*p.TypeID)
	}
	if p.Amenities != nil {
		l.Amenities = cleanStrings(p.Amenities)
	}
	if p.Photos != nil {
		l.Photos = make([]string, 0, len(p.Photos))
		for _, photo := range p.Photos {
			l.Photos = append(l.Photos, strings.TrimSpace(photo))
		}
	}
}

func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
