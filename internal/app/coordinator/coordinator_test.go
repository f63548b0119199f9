package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"staykeeper/internal/app/access"
	"staykeeper/internal/app/locks"
	"staykeeper/internal/domain/availability"
	"staykeeper/internal/domain/listings"
	"staykeeper/internal/domain/shared/daterange"
	"staykeeper/internal/infra/storage/memory"
)

var (
	owner  = access.Actor{AccountID: "owner-1", Role: access.RoleOwner}
	other  = access.Actor{AccountID: "owner-2", Role: access.RoleOwner}
	tenant = access.Actor{AccountID: "tenant-1", Role: access.RoleTenant}
	admin  = access.Actor{AccountID: "admin-1", Role: access.RoleAdmin}
	d0     = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	c      *Coordinator
	store  *memory.ListingStore
	outbox *memory.Outbox
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewListingStore()
	box := memory.NewOutbox(nil, "")
	var seq atomic.Int64
	c := &Coordinator{
		Locks:        locks.NewLocal(),
		UoW:          memory.Factory{Listings: store, Outbox: box},
		Outbox:       box,
		Completeness: listings.CompletenessPolicy{Catalog: memory.NewCatalog([]string{"wifi", "parking"}, []string{"apartment"})},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          func() time.Time { return d0.Add(-48 * time.Hour) },
		NewID:        func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
	}
	return fixture{c: c, store: store, outbox: box}
}

func ptr[T any](v T) *T { return &v }

func completePatch(photos int) listings.PatchParams {
	p := listings.PatchParams{
		Title:       ptr("Sunny loft"),
		Description: ptr("Two rooms near the river"),
		FloorPlan:   &listings.FloorPlan{Guests: 3, Bedrooms: 1, Beds: 2, Bathrooms: 1},
		Price:       &listings.Price{AmountCents: 12000, Currency: "eur"},
		Address:     &listings.Address{Street: "1 Quay St", City: "Lyon", Country: "FR"},
		Location:    &listings.GeoPoint{Lat: 45.76, Lon: 4.83},
		TypeID:      ptr("apartment"),
		Amenities:   []string{"wifi", "parking"},
	}
	for i := 0; i < photos; i++ {
		p.Photos = append(p.Photos, fmt.Sprintf("https://cdn.example/p%d.jpg", i))
	}
	return p
}

func (f fixture) published(t *testing.T) listings.ListingID {
	t.Helper()
	ctx := context.Background()
	l, err := f.c.Create(ctx, owner, CreateInput{Owner: "owner-1", Patch: completePatch(listings.MinPhotos)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.c.Publish(ctx, owner, l.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	return l.ID
}

func days(from, to int) daterange.DateRange {
	return daterange.Must(d0.AddDate(0, 0, from), d0.AddDate(0, 0, to))
}

func TestBookOverlapScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.published(t)

	tests := []struct {
		name    string
		r       daterange.DateRange
		wantErr error
	}{
		{name: "first stay", r: days(0, 5)},
		{name: "starts on last night", r: days(5, 10), wantErr: availability.ErrConflict},
		{name: "ends on first night", r: days(-4, 0), wantErr: availability.ErrConflict},
		{name: "after a gap", r: days(6, 7)},
		{name: "exact repeat", r: days(6, 7), wantErr: availability.ErrConflict},
		{name: "strictly before", r: days(-10, -1)},
	}
	for _, tt := range tests {
		res, err := f.c.Book(ctx, tenant, id, tt.r)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s: Book() error = %v, want %v", tt.name, err, tt.wantErr)
		}
		if err == nil && (res.ID == "" || !res.Range.From.Equal(tt.r.From) || !res.Range.To.Equal(tt.r.To) || res.ListingID != string(id)) {
			t.Fatalf("%s: reservation = %+v", tt.name, res)
		}
	}

	cal, err := f.c.Calendar(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(cal.Reservations()); got != 3 {
		t.Fatalf("reservations = %d, want 3", got)
	}
}

func TestPublishRequiresCompleteness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.c.Create(ctx, owner, CreateInput{Owner: "owner-1", Patch: completePatch(4)})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.c.Publish(ctx, owner, l.ID)
	var incomplete *listings.IncompleteError
	if !errors.Is(err, listings.ErrIncompleteListing) || !errors.As(err, &incomplete) {
		t.Fatalf("Publish() error = %v, want incomplete", err)
	}
	if len(incomplete.Missing) != 1 || incomplete.Missing[0] != "photos" {
		t.Fatalf("missing = %v, want [photos]", incomplete.Missing)
	}
	got, _ := f.c.Get(ctx, l.ID)
	if got.State != listings.StateDraft {
		t.Fatalf("state after failed publish = %s", got.State)
	}

	if _, err := f.c.Patch(ctx, owner, l.ID, listings.PatchParams{Photos: completePatch(5).Photos}); err != nil {
		t.Fatal(err)
	}
	published, err := f.c.Publish(ctx, owner, l.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if published.State != listings.StatePublished {
		t.Fatalf("state = %s, want PUBLISHED", published.State)
	}
	if _, err := f.c.Publish(ctx, owner, l.ID); err != nil {
		t.Fatalf("republish error = %v", err)
	}
}

func TestPublishRejectsUnknownCatalogEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patch := completePatch(5)
	patch.Amenities = []string{"wifi", "helipad"}
	l, err := f.c.Create(ctx, owner, CreateInput{Owner: "owner-1", Patch: patch})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Publish(ctx, owner, l.ID); !errors.Is(err, listings.ErrIncompleteListing) {
		t.Fatalf("Publish() error = %v, want ErrIncompleteListing", err)
	}
}

func TestBookRequiresPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.c.Create(ctx, owner, CreateInput{Owner: "owner-1", Patch: completePatch(5)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Book(ctx, tenant, l.ID, days(0, 2)); !errors.Is(err, listings.ErrNotPublished) {
		t.Fatalf("Book(draft) error = %v, want ErrNotPublished", err)
	}

	if _, err := f.c.Publish(ctx, owner, l.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Unlist(ctx, owner, l.ID, days(20, 25)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Book(ctx, tenant, l.ID, days(0, 2)); !errors.Is(err, listings.ErrNotPublished) {
		t.Fatalf("Book(unlisted) error = %v, want ErrNotPublished", err)
	}
}

func TestUnlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, _ := f.c.Create(ctx, owner, CreateInput{Owner: "owner-1"})
	got, err := f.c.Unlist(ctx, owner, draft.ID, daterange.Unbounded())
	if err != nil {
		t.Fatalf("Unlist(draft) error = %v", err)
	}
	if got.State != listings.StateDraft {
		t.Fatalf("draft state after unlist = %s", got.State)
	}

	id := f.published(t)
	got, err = f.c.Unlist(ctx, owner, id, days(3, 4))
	if err != nil {
		t.Fatal(err)
	}
	if got.State != listings.StateUnlisted {
		t.Fatalf("state = %s, want UNLISTED", got.State)
	}

	if _, err := f.c.Publish(ctx, owner, id); err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Book(ctx, tenant, id, days(4, 6)); !errors.Is(err, availability.ErrConflict) {
		t.Fatalf("Book(over block) error = %v, want ErrConflict", err)
	}
	if _, err := f.c.Book(ctx, tenant, id, days(5, 6)); err != nil {
		t.Fatalf("Book(after block) error = %v", err)
	}

	inverted := daterange.DateRange{From: d0.AddDate(0, 0, 2), To: d0}
	if _, err := f.c.Unlist(ctx, owner, id, inverted); !errors.Is(err, daterange.ErrInvalidRange) {
		t.Fatalf("Unlist(inverted) error = %v", err)
	}
	if _, err := f.c.Book(ctx, tenant, id, inverted); !errors.Is(err, daterange.ErrInvalidRange) {
		t.Fatalf("Book(inverted) error = %v", err)
	}
}

func TestDeletedListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.published(t)

	if err := f.c.Delete(ctx, owner, id); err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Book(ctx, tenant, id, days(0, 1)); !errors.Is(err, listings.ErrNotFound) {
		t.Errorf("Book(deleted) error = %v, want ErrNotFound", err)
	}
	if _, err := f.c.Get(ctx, id); !errors.Is(err, listings.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	if _, err := f.c.IsAvailable(ctx, id, days(0, 1)); !errors.Is(err, listings.ErrNotFound) {
		t.Errorf("IsAvailable(deleted) error = %v, want ErrNotFound", err)
	}
	if _, err := f.c.Publish(ctx, owner, id); !errors.Is(err, listings.ErrAlreadyDeleted) {
		t.Errorf("Publish(deleted) error = %v, want ErrAlreadyDeleted", err)
	}
	if _, err := f.c.Unlist(ctx, owner, id, days(0, 1)); !errors.Is(err, listings.ErrAlreadyDeleted) {
		t.Errorf("Unlist(deleted) error = %v, want ErrAlreadyDeleted", err)
	}
	if err := f.c.Delete(ctx, owner, id); !errors.Is(err, listings.ErrAlreadyDeleted) {
		t.Errorf("second Delete error = %v, want ErrAlreadyDeleted", err)
	}
	if _, err := f.c.Book(ctx, tenant, "missing", days(0, 1)); !errors.Is(err, listings.ErrNotFound) {
		t.Errorf("Book(missing) error = %v, want ErrNotFound", err)
	}

	mine, _ := f.c.ListByOwner(ctx, "owner-1")
	if len(mine) != 0 {
		t.Errorf("ListByOwner() = %d listings, want 0", len(mine))
	}
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.published(t)

	if _, err := f.c.Create(ctx, tenant, CreateInput{Owner: "tenant-1"}); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("tenant Create error = %v", err)
	}
	if _, err := f.c.Create(ctx, owner, CreateInput{Owner: "owner-2"}); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("Create for someone else error = %v", err)
	}
	if _, err := f.c.Unlist(ctx, tenant, id, days(0, 1)); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("tenant Unlist error = %v", err)
	}
	if _, err := f.c.Publish(ctx, other, id); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("other owner Publish error = %v", err)
	}
	if err := f.c.Delete(ctx, other, id); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("other owner Delete error = %v", err)
	}
	if _, err := f.c.Book(ctx, access.Actor{}, id, days(0, 1)); !errors.Is(err, access.ErrUnauthenticated) {
		t.Errorf("anonymous Book error = %v", err)
	}
	if _, err := f.c.Book(ctx, owner, id, days(0, 1)); err != nil {
		t.Errorf("owner Book error = %v", err)
	}
	if _, err := f.c.Unlist(ctx, admin, id, days(10, 11)); err != nil {
		t.Errorf("admin Unlist error = %v", err)
	}

	got, _ := f.c.Get(ctx, id)
	if got.State != listings.StateUnlisted || len(got.Calendar.Blocks()) != 1 {
		t.Errorf("forbidden calls mutated the listing: state=%s blocks=%d", got.State, len(got.Calendar.Blocks()))
	}
}

func TestIsAvailableDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.published(t)
	if _, err := f.c.Book(ctx, tenant, id, days(0, 3)); err != nil {
		t.Fatal(err)
	}
	before, _ := f.store.ByID(ctx, id)

	for i := 0; i < 3; i++ {
		free, err := f.c.IsAvailable(ctx, id, days(2, 4))
		if err != nil || free {
			t.Fatalf("IsAvailable(overlap) = %v, %v", free, err)
		}
		free, err = f.c.IsAvailable(ctx, id, days(4, 6))
		if err != nil || !free {
			t.Fatalf("IsAvailable(free) = %v, %v", free, err)
		}
	}
	after, _ := f.store.ByID(ctx, id)
	if after.Version != before.Version {
		t.Fatalf("version moved from %d to %d", before.Version, after.Version)
	}
}

func TestConcurrentConflictingBookings(t *testing.T) {
	f := newFixture(t)
	f.c.NewID = nil
	ctx := context.Background()
	id := f.published(t)

	const n = 64
	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			// every range covers day 10
			r := days(10-i%5, 10+i%3)
			_, err := f.c.Book(ctx, access.Actor{AccountID: fmt.Sprintf("t-%d", i), Role: access.RoleTenant}, id, r)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, availability.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("Book() unexpected error = %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if ok.Load() != 1 || conflicts.Load() != n-1 {
		t.Fatalf("successes = %d, conflicts = %d; want 1 and %d", ok.Load(), conflicts.Load(), n-1)
	}
	cal, _ := f.c.Calendar(ctx, id)
	if len(cal.Reservations()) != 1 {
		t.Fatalf("reservations = %d, want 1", len(cal.Reservations()))
	}
}

func TestConcurrentBookingsOnDifferentListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := []listings.ListingID{f.published(t), f.published(t), f.published(t)}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id listings.ListingID) {
			defer wg.Done()
			_, err := f.c.Book(ctx, tenant, id, days(0, 3))
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Book() error = %v", err)
		}
	}
}

func TestEventsReachOutbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.published(t)
	if _, err := f.c.Book(ctx, tenant, id, days(0, 3)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Book(ctx, tenant, id, days(1, 2)); !errors.Is(err, availability.ErrConflict) {
		t.Fatal(err)
	}

	var names []string
	for _, rec := range f.outbox.Pending() {
		names = append(names, rec.Name)
	}
	want := []string{"listing.created", "listing.published", "calendar.reserved", "calendar.overbooking_prevented"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}

	cal, _ := f.c.Calendar(ctx, id)
	if len(cal.Reservations()) != 1 {
		t.Fatalf("rejected booking was stored")
	}
}

func TestRoleCheckedBeforeLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := listings.ListingID("-1")

	tests := []struct {
		name string
		call func(actor access.Actor) error
	}{
		{name: "publish", call: func(a access.Actor) error {
			_, err := f.c.Publish(ctx, a, missing)
			return err
		}},
		{name: "unlist", call: func(a access.Actor) error {
			_, err := f.c.Unlist(ctx, a, missing, daterange.Unbounded())
			return err
		}},
		{name: "patch", call: func(a access.Actor) error {
			_, err := f.c.Patch(ctx, a, missing, listings.PatchParams{})
			return err
		}},
		{name: "delete", call: func(a access.Actor) error { return f.c.Delete(ctx, a, missing) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(tenant); !errors.Is(err, access.ErrForbidden) {
				t.Errorf("tenant error = %v, want ErrForbidden", err)
			}
			if err := tt.call(owner); !errors.Is(err, listings.ErrNotFound) {
				t.Errorf("owner error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.published(t)
	if _, err := f.c.Create(ctx, owner, CreateInput{Owner: "owner-1"}); err != nil {
		t.Fatal(err)
	}
	all, err := f.c.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("List(all) = %d items, want drafts included", len(all))
	}
	got, err := f.c.List(ctx, listings.StatePublished)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("List(PUBLISHED) = %v", got)
	}
	mine, _ := f.c.ListByOwner(ctx, "owner-1")
	if len(mine) != 2 {
		t.Fatalf("ListByOwner() = %d, want 2", len(mine))
	}
}

func TestLockHonoursContext(t *testing.T) {
	f := newFixture(t)
	id := f.published(t)
	unlock, err := f.c.Locks.Lock(context.Background(), lockKey(id))
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.c.Book(ctx, tenant, id, days(0, 1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Book() error = %v, want deadline exceeded", err)
	}
}

func TestCreateTakesNoListingLock(t *testing.T) {
	f := newFixture(t)
	f.c.NewID = func() string { return "fresh" }
	unlock, err := f.c.Locks.Lock(context.Background(), lockKey("fresh"))
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	l, err := f.c.Create(ctx, owner, CreateInput{Owner: "owner-1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if l.ID != "fresh" {
		t.Fatalf("ID = %s", l.ID)
	}
}
