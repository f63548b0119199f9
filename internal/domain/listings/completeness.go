package listings

import (
	"context"
	"fmt"
	"strings"
)

// MinPhotos is the number of photos a listing needs before it can be published.
const MinPhotos = 5

// Catalog answers existence questions about amenity and listing-type ids.
type Catalog interface {
	AmenityExists(ctx context.Context, id string) (bool, error)
	ListingTypeExists(ctx context.Context, id string) (bool, error)
}

// Completeness decides whether a listing may be published.
type Completeness interface {
	Check(ctx context.Context, l *Listing) error
}

// IncompleteError lists the fields that block publishing. It matches
// ErrIncompleteListing under errors.Is.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrIncompleteListing.Error(), strings.Join(e.Missing, ", "))
}

func (e *IncompleteError) Unwrap() error { return ErrIncompleteListing }

// CompletenessPolicy is the publish gate. A nil Catalog skips the existence
// checks for type and amenities.
type CompletenessPolicy struct {
	Catalog   Catalog
	MinPhotos int
}

func (p CompletenessPolicy) Check(ctx context.Context, l *Listing) error {
	missing, err := p.Missing(ctx, l)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &IncompleteError{Missing: missing}
	}
	return nil
}

// Missing returns the names of the fields that are not publishable yet.
func (p CompletenessPolicy) Missing(ctx context.Context, l *Listing) ([]string, error) {
	var missing []string
	if strings.TrimSpace(l.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(l.Description) == "" {
		missing = append(missing, "description")
	}
	if !l.FloorPlan.Complete() {
		missing = append(missing, "floor_plan")
	}
	if !l.Price.Complete() {
		missing = append(missing, "price")
	}
	if !l.Address.Complete() {
		missing = append(missing, "address")
	}
	if l.Location == nil || !l.Location.Valid() {
		missing = append(missing, "location")
	}

	typeOK := strings.TrimSpace(l.TypeID) != ""
	if typeOK && p.Catalog != nil {
		ok, err := p.Catalog.ListingTypeExists(ctx, l.TypeID)
		if err != nil {
			return nil, fmt.Errorf("listings: check listing type: %w", err)
		}
		typeOK = ok
	}
	if !typeOK {
		missing = append(missing, "type")
	}

	amenitiesOK := len(l.Amenities) > 0
	if amenitiesOK && p.Catalog != nil {
		for _, id := range l.Amenities {
			ok, err := p.Catalog.AmenityExists(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("listings: check amenity: %w", err)
			}
			if !ok {
				amenitiesOK = false
				break
			}
		}
	}
	if !amenitiesOK {
		missing = append(missing, "amenities")
	}

	if len(l.Photos) < p.minPhotos() {
		missing = append(missing, "photos")
	}
	return missing, nil
}

func (p CompletenessPolicy) minPhotos() int {
	if p.MinPhotos > 0 {
		return p.MinPhotos
	}
	return MinPhotos
}
