package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"staykeeper/internal/domain/availability"
	domainlistings "staykeeper/internal/domain/listings"
	"staykeeper/internal/domain/shared/daterange"
)

const listingsCollection = "agg_listing"

type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	col := db.Collection(listingsCollection)
	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "state", Value: 1}}},
	})
	return &ListingRepository{col: col}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save writes the listing only if the stored version still equals
// listing.Version, then bumps it. A brand new listing (version 0) is
// inserted; a concurrent insert of the same id fails on the primary key.
func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	doc := newListingDocument(listing)
	filter := bson.M{"_id": doc.ID, "version": listing.Version}
	doc.Version = listing.Version + 1
	opts := options.Update().SetUpsert(listing.Version == 0)
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) || isWriteConflict(err) {
			return domainlistings.ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return domainlistings.ErrConcurrentUpdate
	}
	listing.Version = doc.Version
	return nil
}

// isWriteConflict reports a transaction aborted by another writer on the
// same document.
func isWriteConflict(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError")
}

func (r *ListingRepository) ByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error) {
	return r.find(ctx, bson.M{"owner_id": string(owner), "deleted": false})
}

func (r *ListingRepository) ListActive(ctx context.Context) ([]*domainlistings.Listing, error) {
	return r.find(ctx, bson.M{"deleted": false})
}

func (r *ListingRepository) find(ctx context.Context, filter bson.M) ([]*domainlistings.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []listingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode listings: %w", err)
	}
	out := make([]*domainlistings.Listing, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type listingDocument struct {
	ID           string                `bson:"_id"`
	OwnerID      string                `bson:"owner_id"`
	State        string                `bson:"state"`
	Deleted      bool                  `bson:"deleted"`
	Title        string                `bson:"title"`
	Description  string                `bson:"description"`
	FloorPlan    floorPlanDocument     `bson:"floor_plan"`
	Price        priceDocument         `bson:"price"`
	Address      addressDocument       `bson:"address"`
	Location     *geoDocument          `bson:"location,omitempty"`
	TypeID       string                `bson:"type_id"`
	Amenities    []string              `bson:"amenities"`
	Photos       []string              `bson:"photos"`
	Reservations []reservationDocument `bson:"reservations"`
	Blocks       []blockDocument       `bson:"blocks"`
	CreatedAt    int64                 `bson:"created_at"`
	UpdatedAt    int64                 `bson:"updated_at"`
	DeletedAt    int64                 `bson:"deleted_at,omitempty"`
	Version      int64                 `bson:"version"`
}

type floorPlanDocument struct {
	Guests    int `bson:"guests"`
	Bedrooms  int `bson:"bedrooms"`
	Beds      int `bson:"beds"`
	Bathrooms int `bson:"bathrooms"`
}

type priceDocument struct {
	AmountCents int64  `bson:"amount_cents"`
	Currency    string `bson:"currency"`
}

type addressDocument struct {
	Street     string `bson:"street"`
	City       string `bson:"city"`
	Region     string `bson:"region"`
	PostalCode string `bson:"postal_code"`
	Country    string `bson:"country"`
}

// geoDocument is stored as GeoJSON so a 2dsphere index can be added later.
type geoDocument struct {
	Type        string     `bson:"type"`
	Coordinates [2]float64 `bson:"coordinates"`
}

type rangeDocument struct {
	From int64 `bson:"from"`
	To   int64 `bson:"to"`
}

type reservationDocument struct {
	ID        string        `bson:"id"`
	Range     rangeDocument `bson:"range"`
	CreatedAt int64         `bson:"created_at"`
}

type blockDocument struct {
	Range     rangeDocument `bson:"range"`
	CreatedAt int64         `bson:"created_at"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	doc := listingDocument{
		ID:           string(l.ID),
		OwnerID:      string(l.Owner),
		State:        string(l.State),
		Deleted:      l.Deleted,
		Title:        l.Title,
		Description:  l.Description,
		FloorPlan:    floorPlanDocument(l.FloorPlan),
		Price:        priceDocument(l.Price),
		Address:      addressDocument(l.Address),
		TypeID:       l.TypeID,
		Amenities:    nonNilStrings(l.Amenities),
		Photos:       nonNilStrings(l.Photos),
		Reservations: []reservationDocument{},
		Blocks:       []blockDocument{},
		CreatedAt:    l.CreatedAt.UnixMilli(),
		UpdatedAt:    l.UpdatedAt.UnixMilli(),
		Version:      l.Version,
	}
	if !l.DeletedAt.IsZero() {
		doc.DeletedAt = l.DeletedAt.UnixMilli()
	}
	if l.Location != nil {
		doc.Location = &geoDocument{Type: "Point", Coordinates: [2]float64{l.Location.Lon, l.Location.Lat}}
	}
	if l.Calendar != nil {
		for _, res := range l.Calendar.Reservations() {
			doc.Reservations = append(doc.Reservations, reservationDocument{
				ID:        string(res.ID),
				Range:     toRangeDocument(res.Range),
				CreatedAt: res.CreatedAt.UnixMilli(),
			})
		}
		for _, b := range l.Calendar.Blocks() {
			doc.Blocks = append(doc.Blocks, blockDocument{Range: toRangeDocument(b.Range), CreatedAt: b.CreatedAt.UnixMilli()})
		}
	}
	return doc
}

func (d listingDocument) toAggregate() *domainlistings.Listing {
	l := &domainlistings.Listing{
		ID:          domainlistings.ListingID(d.ID),
		Owner:       domainlistings.OwnerID(d.OwnerID),
		State:       domainlistings.ListingState(d.State),
		Deleted:     d.Deleted,
		Title:       d.Title,
		Description: d.Description,
		FloorPlan:   domainlistings.FloorPlan(d.FloorPlan),
		Price:       domainlistings.Price(d.Price),
		Address:     domainlistings.Address(d.Address),
		TypeID:      d.TypeID,
		Amenities:   d.Amenities,
		Photos:      d.Photos,
		Version:     d.Version,
		CreatedAt:   timestampToTime(d.CreatedAt),
		UpdatedAt:   timestampToTime(d.UpdatedAt),
	}
	if d.DeletedAt != 0 {
		l.DeletedAt = timestampToTime(d.DeletedAt)
	}
	if d.Location != nil {
		l.Location = &domainlistings.GeoPoint{Lat: d.Location.Coordinates[1], Lon: d.Location.Coordinates[0]}
	}
	reservations := make([]availability.Reservation, 0, len(d.Reservations))
	for _, r := range d.Reservations {
		reservations = append(reservations, availability.Reservation{
			ID:        availability.ReservationID(r.ID),
			ListingID: d.ID,
			Range:     r.Range.toRange(),
			CreatedAt: timestampToTime(r.CreatedAt),
		})
	}
	blocks := make([]availability.BlockedRange, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		blocks = append(blocks, availability.BlockedRange{Range: b.Range.toRange(), CreatedAt: timestampToTime(b.CreatedAt)})
	}
	l.Calendar = availability.Restore(d.ID, reservations, blocks)
	return l
}

func toRangeDocument(r daterange.DateRange) rangeDocument {
	return rangeDocument{From: r.From.UnixMilli(), To: r.To.UnixMilli()}
}

func (d rangeDocument) toRange() daterange.DateRange {
	return daterange.DateRange{From: timestampToTime(d.From), To: timestampToTime(d.To)}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
