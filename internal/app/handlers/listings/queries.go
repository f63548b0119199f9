package listings

import (
	"context"
	"time"

	"staykeeper/internal/app/dto"
	"staykeeper/internal/app/queries"
	domainlistings "staykeeper/internal/domain/listings"
)

const (
	getListingKey        = "listings.get"
	ownerListingsKey     = "listings.by_owner"
	listListingsKey      = "listings.list"
	checkAvailabilityKey = "listings.availability"
)

type GetListingQuery struct {
	ListingID string `validate:"required"`
}

func (q GetListingQuery) Key() string { return getListingKey }

type OwnerListingsQuery struct {
	OwnerID string `validate:"required"`
}

func (q OwnerListingsQuery) Key() string { return ownerListingsKey }

// ListListingsQuery enumerates non-deleted listings, optionally by state.
type ListListingsQuery struct {
	State string `validate:"omitempty,oneof=DRAFT PUBLISHED UNLISTED"`
}

func (q ListListingsQuery) Key() string { return listListingsKey }

type CheckAvailabilityQuery struct {
	ListingID string     `validate:"required"`
	From      *time.Time `validate:"required"`
	To        *time.Time `validate:"required"`
}

func (q CheckAvailabilityQuery) Key() string { return checkAvailabilityKey }

type QueryHandlers struct {
	Service Service
}

func (h QueryHandlers) Get(ctx context.Context, q GetListingQuery) (dto.Listing, error) {
	l, err := h.Service.Get(ctx, domainlistings.ListingID(q.ListingID))
	if err != nil {
		return dto.Listing{}, err
	}
	return dto.MapListing(l), nil
}

func (h QueryHandlers) ByOwner(ctx context.Context, q OwnerListingsQuery) ([]dto.Listing, error) {
	items, err := h.Service.ListByOwner(ctx, domainlistings.OwnerID(q.OwnerID))
	if err != nil {
		return nil, err
	}
	return dto.MapListings(items), nil
}

func (h QueryHandlers) List(ctx context.Context, q ListListingsQuery) ([]dto.Listing, error) {
	items, err := h.Service.List(ctx, domainlistings.ListingState(q.State))
	if err != nil {
		return nil, err
	}
	return dto.MapListings(items), nil
}

func (h QueryHandlers) Availability(ctx context.Context, q CheckAvailabilityQuery) (dto.Availability, error) {
	r, err := closedRange(q.From, q.To)
	if err != nil {
		return dto.Availability{}, err
	}
	free, err := h.Service.IsAvailable(ctx, domainlistings.ListingID(q.ListingID), r)
	if err != nil {
		return dto.Availability{}, err
	}
	return dto.Availability{ListingID: q.ListingID, Range: dto.MapRange(r), Available: free}, nil
}

func RegisterQueries(bus *queries.InMemoryBus, svc Service) {
	h := QueryHandlers{Service: svc}
	queries.RegisterHandler[GetListingQuery, dto.Listing](bus, getListingKey, queries.HandlerFunc[GetListingQuery, dto.Listing](h.Get))
	queries.RegisterHandler[OwnerListingsQuery, []dto.Listing](bus, ownerListingsKey, queries.HandlerFunc[OwnerListingsQuery, []dto.Listing](h.ByOwner))
	queries.RegisterHandler[ListListingsQuery, []dto.Listing](bus, listListingsKey, queries.HandlerFunc[ListListingsQuery, []dto.Listing](h.List))
	queries.RegisterHandler[CheckAvailabilityQuery, dto.Availability](bus, checkAvailabilityKey, queries.HandlerFunc[CheckAvailabilityQuery, dto.Availability](h.Availability))
}
