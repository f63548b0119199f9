package mongo

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Catalog resolves amenity and listing type ids against reference
// collections keyed by lower-cased id.
type Catalog struct {
	amenities *mongo.Collection
	types     *mongo.Collection
}

func NewCatalog(db *mongo.Database) *Catalog {
	return &Catalog{amenities: db.Collection("ref_amenities"), types: db.Collection("ref_listing_types")}
}

func (c *Catalog) AmenityExists(ctx context.Context, id string) (bool, error) {
	return exists(ctx, c.amenities, id)
}

func (c *Catalog) ListingTypeExists(ctx context.Context, id string) (bool, error) {
	return exists(ctx, c.types, id)
}

// Seed upserts the given ids so a fresh database can publish listings.
func (c *Catalog) Seed(ctx context.Context, amenities, types []string) error {
	if err := seed(ctx, c.amenities, amenities); err != nil {
		return err
	}
	return seed(ctx, c.types, types)
}

func exists(ctx context.Context, col *mongo.Collection, id string) (bool, error) {
	err := col.FindOne(ctx, bson.M{"_id": normalize(id)}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return err == nil, err
}

func seed(ctx context.Context, col *mongo.Collection, ids []string) error {
	for _, id := range ids {
		key := normalize(id)
		if key == "" {
			continue
		}
		_, err := col.UpdateByID(ctx, key, bson.M{"$set": bson.M{"name": strings.TrimSpace(id)}}, options.Update().SetUpsert(true))
		if err != nil {
			return err
		}
	}
	return nil
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
