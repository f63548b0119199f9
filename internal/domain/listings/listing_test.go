package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"staykeeper/internal/domain/availability"
	"staykeeper/internal/domain/shared/daterange"
)

var now = time.Date(2026, time.April, 2, 9, 30, 0, 0, time.UTC)

type fakeCatalog struct {
	amenities map[string]bool
	types     map[string]bool
	err       error
}

func (c fakeCatalog) AmenityExists(ctx context.Context, id string) (bool, error) {
	return c.amenities[id], c.err
}

func (c fakeCatalog) ListingTypeExists(ctx context.Context, id string) (bool, error) {
	return c.types[id], c.err
}

var catalog = fakeCatalog{
	amenities: map[string]bool{"wifi": true, "parking": true},
	types:     map[string]bool{"apartment": true},
}

func ptr[T any](v T) *T { return &v }

func completePatch() PatchParams {
	return PatchParams{
		Title:       ptr("Loft by the river"),
		Description: ptr("Bright two-room loft"),
		FloorPlan:   &FloorPlan{Guests: 3, Bedrooms: 1, Beds: 2, Bathrooms: 1},
		Price:       &Price{AmountCents: 12000, Currency: "eur"},
		Address:     &Address{Street: "1 Quay St", City: "Lyon", Country: "FR"},
		Location:    &GeoPoint{Lat: 45.76, Lon: 4.83},
		TypeID:      ptr("apartment"),
		Amenities:   []string{"wifi", "parking"},
		Photos:      []string{"p1.jpg", "p2.jpg", "p3.jpg", "p4.jpg", "p5.jpg"},
	}
}

func newDraft(t *testing.T) *Listing {
	t.Helper()
	l, err := NewListing(CreateParams{ID: "l-1", Owner: "owner-1", Now: now})
	if err != nil {
		t.Fatalf("NewListing() error = %v", err)
	}
	return l
}

func TestNewListing(t *testing.T) {
	l := newDraft(t)
	if l.State != StateDraft {
		t.Errorf("State = %s, want DRAFT", l.State)
	}
	if l.Deleted {
		t.Error("new listing must not be deleted")
	}
	if l.Calendar == nil || len(l.Calendar.Reservations()) != 0 || len(l.Calendar.Blocks()) != 0 {
		t.Error("new listing must own an empty calendar")
	}

	if _, err := NewListing(CreateParams{ID: "l-2", Now: now}); !errors.Is(err, ErrOwnerRequired) {
		t.Errorf("missing owner error = %v", err)
	}
	if _, err := NewListing(CreateParams{Owner: "o", Now: now}); !errors.Is(err, ErrIDRequired) {
		t.Errorf("missing id error = %v", err)
	}
}

func TestPublishGate(t *testing.T) {
	l := newDraft(t)
	policy := CompletenessPolicy{Catalog: catalog}

	patch := completePatch()
	patch.Photos = []string{"p1.jpg", "p2.jpg"}
	if err := l.Patch(patch, now); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	err := l.Publish(context.Background(), policy, now)
	if !errors.Is(err, ErrIncompleteListing) {
		t.Fatalf("Publish() error = %v, want ErrIncompleteListing", err)
	}
	var incomplete *IncompleteError
	if !errors.As(err, &incomplete) || len(incomplete.Missing) != 1 || incomplete.Missing[0] != "photos" {
		t.Errorf("Publish() missing = %v, want [photos]", incomplete)
	}
	if l.State != StateDraft {
		t.Fatalf("failed publish changed state to %s", l.State)
	}

	if err := l.Patch(completePatch(), now); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if err := l.Publish(context.Background(), policy, now); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if l.State != StatePublished {
		t.Errorf("State = %s, want PUBLISHED", l.State)
	}
	if err := l.Publish(context.Background(), policy, now); err != nil {
		t.Errorf("re-publishing a complete listing error = %v", err)
	}
}

func TestCompletenessPolicyMissing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *PatchParams)
		want   string
	}{
		{name: "blank description", mutate: func(p *PatchParams) { p.Description = ptr("") }, want: "description"},
		{name: "no beds", mutate: func(p *PatchParams) { p.FloorPlan = &FloorPlan{Guests: 2} }, want: "floor_plan"},
		{name: "zero price", mutate: func(p *PatchParams) { p.Price = &Price{Currency: "EUR"} }, want: "price"},
		{name: "no city", mutate: func(p *PatchParams) { p.Address = &Address{Street: "x", Country: "FR"} }, want: "address"},
		{name: "unknown type", mutate: func(p *PatchParams) { p.TypeID = ptr("castle") }, want: "type"},
		{name: "unknown amenity", mutate: func(p *PatchParams) { p.Amenities = []string{"wifi", "pool"} }, want: "amenities"},
		{name: "no amenities", mutate: func(p *PatchParams) { p.Amenities = []string{} }, want: "amenities"},
		{name: "four photos", mutate: func(p *PatchParams) { p.Photos = p.Photos[:4] }, want: "photos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newDraft(t)
			patch := completePatch()
			tt.mutate(&patch)
			if err := l.Patch(patch, now); err != nil {
				t.Fatalf("Patch() error = %v", err)
			}
			missing, err := CompletenessPolicy{Catalog: catalog}.Missing(context.Background(), l)
			if err != nil {
				t.Fatalf("Missing() error = %v", err)
			}
			if len(missing) != 1 || missing[0] != tt.want {
				t.Errorf("Missing() = %v, want [%s]", missing, tt.want)
			}
		})
	}

	t.Run("missing location", func(t *testing.T) {
		l := newDraft(t)
		patch := completePatch()
		patch.Location = nil
		if err := l.Patch(patch, now); err != nil {
			t.Fatal(err)
		}
		missing, _ := CompletenessPolicy{Catalog: catalog}.Missing(context.Background(), l)
		if len(missing) != 1 || missing[0] != "location" {
			t.Errorf("Missing() = %v, want [location]", missing)
		}
	})

	t.Run("catalog failure", func(t *testing.T) {
		l := newDraft(t)
		if err := l.Patch(completePatch(), now); err != nil {
			t.Fatal(err)
		}
		boom := errors.New("catalog down")
		err := l.Publish(context.Background(), CompletenessPolicy{Catalog: fakeCatalog{err: boom}}, now)
		if !errors.Is(err, boom) || errors.Is(err, ErrIncompleteListing) {
			t.Errorf("Publish() error = %v, want catalog error", err)
		}
	})
}

func TestUnlist(t *testing.T) {
	r := daterange.Must(now, now.AddDate(0, 0, 3))

	t.Run("draft stays draft", func(t *testing.T) {
		l := newDraft(t)
		if _, err := l.Unlist(r, now); err != nil {
			t.Fatalf("Unlist() error = %v", err)
		}
		if l.State != StateDraft {
			t.Errorf("State = %s, want DRAFT", l.State)
		}
		if len(l.Calendar.Blocks()) != 1 {
			t.Error("unlist from draft must still record the block")
		}
	})

	t.Run("published becomes unlisted", func(t *testing.T) {
		l := newDraft(t)
		_ = l.Patch(completePatch(), now)
		if err := l.Publish(context.Background(), CompletenessPolicy{Catalog: catalog}, now); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Unlist(daterange.Unbounded(), now); err != nil {
			t.Fatalf("Unlist() error = %v", err)
		}
		if l.State != StateUnlisted {
			t.Errorf("State = %s, want UNLISTED", l.State)
		}
		if _, err := l.Unlist(r, now); err != nil || l.State != StateUnlisted {
			t.Errorf("second unlist: err=%v state=%s", err, l.State)
		}
	})

	t.Run("republish re-validates", func(t *testing.T) {
		l := newDraft(t)
		_ = l.Patch(completePatch(), now)
		policy := CompletenessPolicy{Catalog: catalog}
		if err := l.Publish(context.Background(), policy, now); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Unlist(r, now); err != nil {
			t.Fatal(err)
		}
		if err := l.Patch(PatchParams{Photos: []string{"only.jpg"}}, now); err != nil {
			t.Fatal(err)
		}
		if err := l.Publish(context.Background(), policy, now); !errors.Is(err, ErrIncompleteListing) {
			t.Fatalf("Publish() error = %v, want ErrIncompleteListing", err)
		}
		if l.State != StateUnlisted {
			t.Errorf("State = %s, want UNLISTED", l.State)
		}
		_ = l.Patch(completePatch(), now)
		if err := l.Publish(context.Background(), policy, now); err != nil {
			t.Fatal(err)
		}
		if l.State != StatePublished {
			t.Errorf("State = %s, want PUBLISHED", l.State)
		}
		if len(l.Calendar.Blocks()) != 1 {
			t.Error("blocks must survive republishing")
		}
	})
}

func TestReserveRequiresPublished(t *testing.T) {
	l := newDraft(t)
	r := daterange.Must(now, now.AddDate(0, 0, 1))
	if _, err := l.Reserve(r, "res-1", now); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("Reserve() on draft error = %v, want ErrNotPublished", err)
	}
	_ = l.Patch(completePatch(), now)
	if err := l.Publish(context.Background(), CompletenessPolicy{Catalog: catalog}, now); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reserve(r, "res-1", now); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if _, err := l.Reserve(r, "res-2", now); !errors.Is(err, availability.ErrConflict) {
		t.Errorf("Reserve() error = %v, want ErrConflict", err)
	}
}

func TestDeleteIsTerminal(t *testing.T) {
	l := newDraft(t)
	if err := l.Delete(now); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	r := daterange.Must(now, now)
	checks := map[string]error{
		"publish": l.Publish(context.Background(), CompletenessPolicy{}, now),
		"patch":   l.Patch(completePatch(), now),
		"delete":  l.Delete(now),
	}
	_, checks["unlist"] = l.Unlist(r, now)
	_, checks["reserve"] = l.Reserve(r, "x", now)
	for op, err := range checks {
		if !errors.Is(err, ErrAlreadyDeleted) {
			t.Errorf("%s after delete error = %v, want ErrAlreadyDeleted", op, err)
		}
	}
	if !l.Deleted {
		t.Error("Deleted flag was unset")
	}
}

func TestPatchValidationIsAllOrNothing(t *testing.T) {
	l := newDraft(t)
	patch := PatchParams{Title: ptr("New title"), Location: &GeoPoint{Lat: 91}}
	if err := l.Patch(patch, now); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("Patch() error = %v, want ErrInvalidLocation", err)
	}
	if l.Title != "" {
		t.Errorf("rejected patch applied title %q", l.Title)
	}
	if err := l.Patch(PatchParams{Photos: []string{"a", " "}}, now); !errors.Is(err, ErrInvalidPhoto) {
		t.Errorf("Patch() error = %v, want ErrInvalidPhoto", err)
	}
	same := []string{"p.jpg", "p.jpg ", "p.jpg", "p.jpg", "p.jpg"}
	if err := l.Patch(PatchParams{Photos: same}, now); !errors.Is(err, ErrDuplicatePhoto) {
		t.Errorf("Patch() error = %v, want ErrDuplicatePhoto", err)
	}
	if len(l.Photos) != 0 {
		t.Errorf("rejected patch stored photos %v", l.Photos)
	}
}

func TestDrainEventsAndClone(t *testing.T) {
	l := newDraft(t)
	_ = l.Patch(completePatch(), now)
	_ = l.Publish(context.Background(), CompletenessPolicy{Catalog: catalog}, now)
	_, _ = l.Reserve(daterange.Must(now, now), "res-1", now)

	names := []string{}
	for _, ev := range l.DrainEvents() {
		names = append(names, ev.EventName())
	}
	want := []string{"listing.created", "listing.updated", "listing.published", "calendar.reserved"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, names[i], want[i])
		}
	}
	if len(l.DrainEvents()) != 0 {
		t.Error("DrainEvents() must clear the buffers")
	}

	clone := l.Clone()
	clone.Photos[0] = "changed"
	clone.Location.Lat = 0
	if l.Photos[0] == "changed" || l.Location.Lat == 0 {
		t.Error("Clone() shares memory with the original")
	}
	if len(clone.Calendar.Reservations()) != 1 {
		t.Error("Clone() dropped reservations")
	}
}
