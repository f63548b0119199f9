package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog checks ids against the amenities and listing_types tables.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) AmenityExists(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS(SELECT 1 FROM amenities WHERE id=$1)`, id)
}

func (c *Catalog) ListingTypeExists(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS(SELECT 1 FROM listing_types WHERE id=$1)`, id)
}

func (c *Catalog) exists(ctx context.Context, sql, id string) (bool, error) {
	var ok bool
	err := conn(ctx, c.pool).QueryRow(ctx, sql, normalize(id)).Scan(&ok)
	return ok, err
}

// Seed inserts missing catalog entries.
func (c *Catalog) Seed(ctx context.Context, amenities, types []string) error {
	for _, id := range amenities {
		if key := normalize(id); key != "" {
			if _, err := c.pool.Exec(ctx, `INSERT INTO amenities (id, name) VALUES ($1,$2) ON CONFLICT (id) DO NOTHING`, key, strings.TrimSpace(id)); err != nil {
				return err
			}
		}
	}
	for _, id := range types {
		if key := normalize(id); key != "" {
			if _, err := c.pool.Exec(ctx, `INSERT INTO listing_types (id, name) VALUES ($1,$2) ON CONFLICT (id) DO NOTHING`, key, strings.TrimSpace(id)); err != nil {
				return err
			}
		}
	}
	return nil
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
