package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"staykeeper/internal/domain/availability"
	domainlistings "staykeeper/internal/domain/listings"
	"staykeeper/internal/domain/shared/daterange"
)

const listingColumns = `id, owner_id, state, deleted, title, description,
	guests, bedrooms, beds, bathrooms, price_cents, currency,
	street, city, region, postal_code, country, lat, lon,
	type_id, amenities, photos, created_at, updated_at, deleted_at, version`

// ListingRepository stores the listing row and its append-only calendar
// rows. Calls join the transaction carried by ctx.
type ListingRepository struct {
	pool *pgxpool.Pool
}

func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	q := conn(ctx, r.pool)
	l, err := scanListing(q.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id=$1`, string(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainlistings.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadCalendars(ctx, q, []*domainlistings.Listing{l}); err != nil {
		return nil, err
	}
	return l, nil
}

// Save applies the optimistic version check, then appends calendar rows
// that are not stored yet. Reservations and blocks are never rewritten.
func (r *ListingRepository) Save(ctx context.Context, l *domainlistings.Listing) error {
	q := conn(ctx, r.pool)
	next := l.Version + 1
	var lat, lon *float64
	if l.Location != nil {
		lat, lon = &l.Location.Lat, &l.Location.Lon
	}
	var deletedAt *time.Time
	if !l.DeletedAt.IsZero() {
		deletedAt = &l.DeletedAt
	}
	args := []any{
		string(l.ID), string(l.Owner), string(l.State), l.Deleted, l.Title, l.Description,
		l.FloorPlan.Guests, l.FloorPlan.Bedrooms, l.FloorPlan.Beds, l.FloorPlan.Bathrooms,
		l.Price.AmountCents, l.Price.Currency,
		l.Address.Street, l.Address.City, l.Address.Region, l.Address.PostalCode, l.Address.Country,
		lat, lon, l.TypeID, nonNil(l.Amenities), nonNil(l.Photos),
		l.CreatedAt, l.UpdatedAt, deletedAt, next,
	}

	var sql string
	if l.Version == 0 {
		sql = `INSERT INTO listings (` + listingColumns + `)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
			ON CONFLICT (id) DO NOTHING`
	} else {
		sql = `UPDATE listings SET owner_id=$2, state=$3, deleted=$4, title=$5, description=$6,
			guests=$7, bedrooms=$8, beds=$9, bathrooms=$10, price_cents=$11, currency=$12,
			street=$13, city=$14, region=$15, postal_code=$16, country=$17, lat=$18, lon=$19,
			type_id=$20, amenities=$21, photos=$22, created_at=$23, updated_at=$24, deleted_at=$25, version=$26
			WHERE id=$1 AND version=$27`
		args = append(args, l.Version)
	}
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainlistings.ErrConcurrentUpdate
	}
	if err := r.appendCalendar(ctx, q, l); err != nil {
		return err
	}
	l.Version = next
	return nil
}

func (r *ListingRepository) appendCalendar(ctx context.Context, q querier, l *domainlistings.Listing) error {
	if l.Calendar == nil {
		return nil
	}
	batch := &pgx.Batch{}
	for _, res := range l.Calendar.Reservations() {
		batch.Queue(`INSERT INTO listing_reservations (listing_id, id, date_from, date_to, created_at)
			VALUES ($1,$2,$3,$4,$5) ON CONFLICT (listing_id, id) DO NOTHING`,
			string(l.ID), string(res.ID), res.Range.From, res.Range.To, res.CreatedAt)
	}
	for seq, b := range l.Calendar.Blocks() {
		batch.Queue(`INSERT INTO listing_blocks (listing_id, seq, date_from, date_to, created_at)
			VALUES ($1,$2,$3,$4,$5) ON CONFLICT (listing_id, seq) DO NOTHING`,
			string(l.ID), seq, b.Range.From, b.Range.To, b.CreatedAt)
	}
	if batch.Len() == 0 {
		return nil
	}
	results := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("postgres: append calendar: %w", err)
		}
	}
	return results.Close()
}

func (r *ListingRepository) ByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error) {
	return r.list(ctx, `SELECT `+listingColumns+` FROM listings WHERE owner_id=$1 AND NOT deleted ORDER BY created_at, id`, string(owner))
}

func (r *ListingRepository) ListActive(ctx context.Context) ([]*domainlistings.Listing, error) {
	return r.list(ctx, `SELECT `+listingColumns+` FROM listings WHERE NOT deleted ORDER BY created_at, id`)
}

func (r *ListingRepository) list(ctx context.Context, sql string, args ...any) ([]*domainlistings.Listing, error) {
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domainlistings.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadCalendars(ctx, q, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadCalendars restores the calendar of every listing with two queries.
func (r *ListingRepository) loadCalendars(ctx context.Context, q querier, items []*domainlistings.Listing) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, l := range items {
		ids = append(ids, string(l.ID))
	}
	reservations := make(map[string][]availability.Reservation, len(items))
	rows, err := q.Query(ctx, `SELECT listing_id, id, date_from, date_to, created_at
		FROM listing_reservations WHERE listing_id = ANY($1) ORDER BY listing_id, created_at, id`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var res availability.Reservation
		var id string
		if err := rows.Scan(&res.ListingID, &id, &res.Range.From, &res.Range.To, &res.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		res.ID = availability.ReservationID(id)
		res.Range = utcRange(res.Range)
		reservations[res.ListingID] = append(reservations[res.ListingID], res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	blocks := make(map[string][]availability.BlockedRange, len(items))
	rows, err = q.Query(ctx, `SELECT listing_id, date_from, date_to, created_at
		FROM listing_blocks WHERE listing_id = ANY($1) ORDER BY listing_id, seq`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var listingID string
		var b availability.BlockedRange
		if err := rows.Scan(&listingID, &b.Range.From, &b.Range.To, &b.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		b.Range = utcRange(b.Range)
		blocks[listingID] = append(blocks[listingID], b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range items {
		id := string(l.ID)
		l.Calendar = availability.Restore(id, reservations[id], blocks[id])
	}
	return nil
}

func scanListing(row pgx.Row) (*domainlistings.Listing, error) {
	var (
		l                    domainlistings.Listing
		id, owner, state     string
		lat, lon             *float64
		deletedAt            *time.Time
		createdAt, updatedAt time.Time
	)
	err := row.Scan(
		&id, &owner, &state, &l.Deleted, &l.Title, &l.Description,
		&l.FloorPlan.Guests, &l.FloorPlan.Bedrooms, &l.FloorPlan.Beds, &l.FloorPlan.Bathrooms,
		&l.Price.AmountCents, &l.Price.Currency,
		&l.Address.Street, &l.Address.City, &l.Address.Region, &l.Address.PostalCode, &l.Address.Country,
		&lat, &lon, &l.TypeID, &l.Amenities, &l.Photos,
		&createdAt, &updatedAt, &deletedAt, &l.Version,
	)
	if err != nil {
		return nil, err
	}
	l.ID = domainlistings.ListingID(id)
	l.Owner = domainlistings.OwnerID(owner)
	l.State = domainlistings.ListingState(state)
	l.CreatedAt = createdAt.UTC()
	l.UpdatedAt = updatedAt.UTC()
	if deletedAt != nil {
		l.DeletedAt = deletedAt.UTC()
	}
	if lat != nil && lon != nil {
		l.Location = &domainlistings.GeoPoint{Lat: *lat, Lon: *lon}
	}
	return &l, nil
}

func utcRange(r daterange.DateRange) daterange.DateRange {
	return daterange.DateRange{From: daterange.Day(r.From), To: daterange.Day(r.To)}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
