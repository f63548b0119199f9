package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"staykeeper/internal/app/access"
	"staykeeper/internal/app/locks"
	"staykeeper/internal/app/outbox"
	"staykeeper/internal/app/uow"
	"staykeeper/internal/domain/availability"
	"staykeeper/internal/domain/listings"
	"staykeeper/internal/domain/shared/daterange"
)

var ErrNotConfigured = errors.New("coordinator: missing dependencies")

// Coordinator serializes every mutation of a listing behind a per-listing
// lock and runs it inside a single unit of work. Listings never contend with
// each other.
type Coordinator struct {
	Locks        locks.Locker
	UoW          uow.UoWFactory
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	Completeness listings.Completeness
	Logger       *slog.Logger
	Now          func() time.Time
	NewID        func() string
}

type CreateInput struct {
	Owner listings.OwnerID
	Patch listings.PatchParams
}

func (c *Coordinator) Create(ctx context.Context, actor access.Actor, in CreateInput) (*listings.Listing, error) {
	if err := actor.CanCreateFor(string(in.Owner)); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	id := listings.ListingID(c.newID())
	unit, execCtx, err := uow.Begin(ctx, c.UoW, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}()

	listing, err := listings.NewListing(listings.CreateParams{ID: id, Owner: in.Owner, Patch: in.Patch, Now: c.now()})
	if err != nil {
		return nil, err
	}
	if err := c.persist(execCtx, unit, listing); err != nil {
		return nil, err
	}
	committed = true
	c.logger().InfoContext(ctx, "listing created", "listing_id", listing.ID, "owner_id", listing.Owner)
	return listing, nil
}

func (c *Coordinator) Patch(ctx context.Context, actor access.Actor, id listings.ListingID, params listings.PatchParams) (*listings.Listing, error) {
	if err := actor.CanManageListings(); err != nil {
		return nil, err
	}
	return c.mutate(ctx, id, func(ctx context.Context, l *listings.Listing) error {
		if err := actor.CanManage(string(l.Owner)); err != nil {
			return err
		}
		return l.Patch(params, c.now())
	})
}

func (c *Coordinator) Publish(ctx context.Context, actor access.Actor, id listings.ListingID) (*listings.Listing, error) {
	if err := actor.CanManageListings(); err != nil {
		return nil, err
	}
	listing, err := c.mutate(ctx, id, func(ctx context.Context, l *listings.Listing) error {
		if err := actor.CanManage(string(l.Owner)); err != nil {
			return err
		}
		return l.Publish(ctx, c.Completeness, c.now())
	})
	if err != nil {
		return nil, err
	}
	c.logger().InfoContext(ctx, "listing published", "listing_id", id)
	return listing, nil
}

// Unlist blocks r on the listing calendar. Passing daterange.Unbounded()
// takes the listing off the market entirely.
func (c *Coordinator) Unlist(ctx context.Context, actor access.Actor, id listings.ListingID, r daterange.DateRange) (*listings.Listing, error) {
	if err := actor.CanManageListings(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	listing, err := c.mutate(ctx, id, func(ctx context.Context, l *listings.Listing) error {
		if err := actor.CanManage(string(l.Owner)); err != nil {
			return err
		}
		_, err := l.Unlist(r, c.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger().InfoContext(ctx, "listing unlisted", "listing_id", id, "range", r.String(), "state", listing.State)
	return listing, nil
}

func (c *Coordinator) Delete(ctx context.Context, actor access.Actor, id listings.ListingID) error {
	if err := actor.CanManageListings(); err != nil {
		return err
	}
	_, err := c.mutate(ctx, id, func(ctx context.Context, l *listings.Listing) error {
		if err := actor.CanManage(string(l.Owner)); err != nil {
			return err
		}
		return l.Delete(c.now())
	})
	if err != nil {
		return err
	}
	c.logger().InfoContext(ctx, "listing deleted", "listing_id", id)
	return nil
}

// Book admits a reservation for r when the listing is published and the
// range is free. A deleted listing reports listings.ErrNotFound.
func (c *Coordinator) Book(ctx context.Context, actor access.Actor, id listings.ListingID, r daterange.DateRange) (availability.Reservation, error) {
	if err := actor.CanBook(); err != nil {
		return availability.Reservation{}, err
	}
	if err := r.Validate(); err != nil {
		return availability.Reservation{}, err
	}
	var reservation availability.Reservation
	_, err := c.mutate(ctx, id, func(ctx context.Context, l *listings.Listing) error {
		if l.Deleted {
			return listings.ErrNotFound
		}
		res, err := l.Reserve(r, availability.ReservationID(c.newID()), c.now())
		if err != nil {
			return err
		}
		reservation = res
		return nil
	})
	if err != nil {
		if errors.Is(err, availability.ErrConflict) {
			c.logger().WarnContext(ctx, "overbooking prevented", "listing_id", id, "range", r.String(), "account_id", actor.AccountID)
		}
		return availability.Reservation{}, err
	}
	c.logger().InfoContext(ctx, "reservation accepted", "listing_id", id, "reservation_id", reservation.ID, "range", r.String())
	return reservation, nil
}

// IsAvailable answers from a snapshot without taking the listing lock.
func (c *Coordinator) IsAvailable(ctx context.Context, id listings.ListingID, r daterange.DateRange) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	listing, err := c.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return listing.IsFree(r), nil
}

func (c *Coordinator) Get(ctx context.Context, id listings.ListingID) (*listings.Listing, error) {
	var out *listings.Listing
	err := c.read(ctx, func(ctx context.Context, repo listings.Repository) error {
		l, err := repo.ByID(ctx, id)
		if err != nil {
			return err
		}
		if l.Deleted {
			return listings.ErrNotFound
		}
		out = l
		return nil
	})
	return out, err
}

func (c *Coordinator) ListByOwner(ctx context.Context, owner listings.OwnerID) ([]*listings.Listing, error) {
	var out []*listings.Listing
	err := c.read(ctx, func(ctx context.Context, repo listings.Repository) error {
		items, err := repo.ByOwner(ctx, owner)
		out = items
		return err
	})
	return out, err
}

// List returns every non-deleted listing. A non-empty state keeps only the
// listings in that state.
func (c *Coordinator) List(ctx context.Context, state listings.ListingState) ([]*listings.Listing, error) {
	var out []*listings.Listing
	err := c.read(ctx, func(ctx context.Context, repo listings.Repository) error {
		items, err := repo.ListActive(ctx)
		if err != nil {
			return err
		}
		if state == "" {
			out = items
			return nil
		}
		for _, l := range items {
			if l.State == state {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

func (c *Coordinator) Calendar(ctx context.Context, id listings.ListingID) (*availability.Calendar, error) {
	listing, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.Calendar == nil {
		return availability.NewCalendar(string(listing.ID)), nil
	}
	return listing.Calendar, nil
}

// mutate runs fn on a freshly loaded listing inside the listing lock and a
// unit of work. Nothing is saved when fn fails, except that events explaining
// a rejected booking are still committed to the outbox.
func (c *Coordinator) mutate(ctx context.Context, id listings.ListingID, fn func(ctx context.Context, l *listings.Listing) error) (*listings.Listing, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	unlock, err := c.Locks.Lock(ctx, lockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	unit, execCtx, err := uow.Begin(ctx, c.UoW, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}()

	listing, err := unit.Listings().ByID(execCtx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(execCtx, listing); err != nil {
		if errors.Is(err, availability.ErrConflict) {
			committed = c.commitRejection(execCtx, unit, listing)
		}
		return nil, err
	}
	if err := c.persist(execCtx, unit, listing); err != nil {
		return nil, err
	}
	committed = true
	return listing, nil
}

func (c *Coordinator) persist(ctx context.Context, unit uow.UnitOfWork, listing *listings.Listing) error {
	if err := unit.Listings().Save(ctx, listing); err != nil {
		return err
	}
	if err := outbox.RecordDomainEvents(ctx, c.Outbox, c.Encoder, listing.DrainEvents()); err != nil {
		return fmt.Errorf("coordinator: record events: %w", err)
	}
	return unit.Commit(ctx)
}

// commitRejection stores the events of an unchanged listing. It reports
// whether the unit was committed.
func (c *Coordinator) commitRejection(ctx context.Context, unit uow.UnitOfWork, listing *listings.Listing) bool {
	evs := listing.DrainEvents()
	if len(evs) == 0 || c.Outbox == nil {
		return false
	}
	if err := outbox.RecordDomainEvents(ctx, c.Outbox, c.Encoder, evs); err != nil {
		c.logger().WarnContext(ctx, "record rejection events", "listing_id", listing.ID, "error", err)
		return false
	}
	if err := unit.Commit(ctx); err != nil {
		c.logger().WarnContext(ctx, "commit rejection events", "listing_id", listing.ID, "error", err)
		return false
	}
	return true
}

func (c *Coordinator) read(ctx context.Context, fn func(ctx context.Context, repo listings.Repository) error) error {
	if c.UoW == nil {
		return ErrNotConfigured
	}
	unit, execCtx, err := uow.Begin(ctx, c.UoW, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = unit.Rollback(execCtx) }()
	return fn(execCtx, unit.Listings())
}

func (c *Coordinator) check() error {
	if c.Locks == nil || c.UoW == nil {
		return ErrNotConfigured
	}
	return nil
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Coordinator) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func lockKey(id listings.ListingID) string {
	return "listing:" + string(id)
}
