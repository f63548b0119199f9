package memory

import (
	"context"
	"strings"

	domainlistings "staykeeper/internal/domain/listings"
)

// Catalog is a fixed set of amenity and listing type ids, usually loaded
// from configuration.
type Catalog struct {
	amenities map[string]struct{}
	types     map[string]struct{}
}

func NewCatalog(amenities, types []string) *Catalog {
	return &Catalog{amenities: toSet(amenities), types: toSet(types)}
}

func (c *Catalog) AmenityExists(ctx context.Context, id string) (bool, error) {
	_, ok := c.amenities[normalize(id)]
	return ok, nil
}

func (c *Catalog) ListingTypeExists(ctx context.Context, id string) (bool, error) {
	_, ok := c.types[normalize(id)]
	return ok, nil
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = normalize(v); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

var _ domainlistings.Catalog = (*Catalog)(nil)
