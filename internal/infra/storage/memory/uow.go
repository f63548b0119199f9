package memory

import (
	"context"
	"errors"
	"sync"

	"staykeeper/internal/app/outbox"
	"staykeeper/internal/app/uow"
	domainlistings "staykeeper/internal/domain/listings"
)

var (
	ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")
	ErrUnitClosed           = errors.New("memory: unit of work already finished")
)

// Factory starts units that stage writes and apply them atomically on
// Commit. Outbox records added through a unit's context are released to
// Outbox only when the unit commits.
type Factory struct {
	Listings *ListingStore
	Outbox   *Outbox
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Listings == nil {
		return nil, ErrFactoryMisconfigured
	}
	u := &Unit{store: f.Listings, outbox: f.Outbox, readOnly: opts.ReadOnly}
	u.repo = &unitRepository{unit: u}
	return u, nil
}

type stagedListing struct {
	expected int64
	listing  *domainlistings.Listing
}

type Unit struct {
	store    *ListingStore
	outbox   *Outbox
	readOnly bool
	repo     *unitRepository

	mu      sync.Mutex
	staged  map[domainlistings.ListingID]stagedListing
	order   []domainlistings.ListingID
	records []outbox.EventRecord
	done    bool
}

func (u *Unit) Listings() domainlistings.Repository {
	return u.repo
}

func (u *Unit) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return ErrUnitClosed
	}
	u.done = true
	batch := make([]stagedListing, 0, len(u.order))
	for _, id := range u.order {
		batch = append(batch, u.staged[id])
	}
	if len(batch) > 0 {
		if err := u.store.apply(batch); err != nil {
			return err
		}
	}
	if u.outbox != nil && len(u.records) > 0 {
		u.outbox.enqueue(u.records)
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.done = true
	u.staged = nil
	u.order = nil
	u.records = nil
	return nil
}

func unitFromContext(ctx context.Context) (*Unit, bool) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, false
	}
	u, ok := unit.(*Unit)
	return u, ok
}

func (u *Unit) stageRecord(rec outbox.EventRecord) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return ErrUnitClosed
	}
	u.records = append(u.records, rec)
	return nil
}

func (u *Unit) stage(listing *domainlistings.Listing) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return ErrUnitClosed
	}
	if u.readOnly {
		return uow.ErrReadOnly
	}
	if u.staged == nil {
		u.staged = make(map[domainlistings.ListingID]stagedListing)
	}
	expected := listing.Version
	if prev, ok := u.staged[listing.ID]; ok {
		expected = prev.expected
	} else {
		u.order = append(u.order, listing.ID)
	}
	listing.Version++
	u.staged[listing.ID] = stagedListing{expected: expected, listing: listing.Clone()}
	return nil
}

func (u *Unit) stagedCopy(id domainlistings.ListingID) (*domainlistings.Listing, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	st, ok := u.staged[id]
	if !ok {
		return nil, false
	}
	return st.listing.Clone(), true
}

// unitRepository reads through staged writes to the committed store.
type unitRepository struct {
	unit *Unit
}

func (r *unitRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	if l, ok := r.unit.stagedCopy(id); ok {
		return l, nil
	}
	return r.unit.store.ByID(ctx, id)
}

func (r *unitRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	return r.unit.stage(listing)
}

func (r *unitRepository) ByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error) {
	return r.unit.store.ByOwner(ctx, owner)
}

func (r *unitRepository) ListActive(ctx context.Context) ([]*domainlistings.Listing, error) {
	return r.unit.store.ListActive(ctx)
}

var (
	_ uow.UoWFactory            = Factory{}
	_ uow.UnitOfWork            = (*Unit)(nil)
	_ domainlistings.Repository = (*unitRepository)(nil)
)
