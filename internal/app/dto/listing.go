package dto

import (
	"time"

	domainlistings "staykeeper/internal/domain/listings"
)

type FloorPlan struct {
	Guests    int `json:"guests" validate:"gte=0"`
	Bedrooms  int `json:"bedrooms" validate:"gte=0"`
	Beds      int `json:"beds" validate:"gte=0"`
	Bathrooms int `json:"bathrooms" validate:"gte=0"`
}

type Price struct {
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
	Currency    string `json:"currency" validate:"omitempty,currency"`
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

type GeoPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Listing is the public view of a listing aggregate.
type Listing struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	State       string    `json:"state"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FloorPlan   FloorPlan `json:"floor_plan"`
	Price       Price     `json:"price"`
	Address     Address   `json:"address"`
	Location    *GeoPoint `json:"location,omitempty"`
	TypeID      string    `json:"type_id"`
	Amenities   []string  `json:"amenities"`
	Photos      []string  `json:"photos"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func MapListing(l *domainlistings.Listing) Listing {
	if l == nil {
		return Listing{}
	}
	out := Listing{
		ID:          string(l.ID),
		OwnerID:     string(l.Owner),
		State:       string(l.State),
		Title:       l.Title,
		Description: l.Description,
		FloorPlan:   FloorPlan(l.FloorPlan),
		Price:       Price(l.Price),
		Address:     Address(l.Address),
		TypeID:      l.TypeID,
		Amenities:   nonNil(l.Amenities),
		Photos:      nonNil(l.Photos),
		Version:     l.Version,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
	if l.Location != nil {
		loc := GeoPoint(*l.Location)
		out.Location = &loc
	}
	return out
}

func MapListings(items []*domainlistings.Listing) []Listing {
	out := make([]Listing, 0, len(items))
	for _, l := range items {
		out = append(out, MapListing(l))
	}
	return out
}

// ListingFields is the writable part of a listing. Nil pointers and nil
// slices leave the current value untouched.
type ListingFields struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	FloorPlan   *FloorPlan `json:"floor_plan,omitempty"`
	Price       *Price     `json:"price,omitempty"`
	Address     *Address   `json:"address,omitempty"`
	Location    *GeoPoint  `json:"location,omitempty"`
	TypeID      *string    `json:"type_id,omitempty"`
	Amenities   []string   `json:"amenities,omitempty" validate:"omitempty,dive,required"`
	Photos      []string   `json:"photos,omitempty" validate:"omitempty,unique,dive,required,url"`
}

func (f ListingFields) PatchParams() domainlistings.PatchParams {
	p := domainlistings.PatchParams{
		Title:       f.Title,
		Description: f.Description,
		TypeID:      f.TypeID,
		Amenities:   f.Amenities,
		Photos:      f.Photos,
	}
	if f.FloorPlan != nil {
		fp := domainlistings.FloorPlan(*f.FloorPlan)
		p.FloorPlan = &fp
	}
	if f.Price != nil {
		price := domainlistings.Price(*f.Price)
		p.Price = &price
	}
	if f.Address != nil {
		addr := domainlistings.Address(*f.Address)
		p.Address = &addr
	}
	if f.Location != nil {
		loc := domainlistings.GeoPoint(*f.Location)
		p.Location = &loc
	}
	return p
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string(nil), values...)
}
