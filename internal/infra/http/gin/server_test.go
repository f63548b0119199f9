package ginserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"

	"staykeeper/internal/app/commands"
	"staykeeper/internal/app/coordinator"
	"staykeeper/internal/app/dto"
	availabilityapp "staykeeper/internal/app/handlers/availability"
	listingapp "staykeeper/internal/app/handlers/listings"
	"staykeeper/internal/app/locks"
	"staykeeper/internal/app/middleware"
	"staykeeper/internal/app/queries"
	"staykeeper/internal/app/validation"
	domainlistings "staykeeper/internal/domain/listings"
	"staykeeper/internal/infra/config"
	"staykeeper/internal/infra/obs"
	"staykeeper/internal/infra/storage/memory"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewListingStore()
	box := memory.NewOutbox(nil, "")
	svc := &coordinator.Coordinator{
		Locks:        locks.NewLocal(),
		UoW:          memory.Factory{Listings: store, Outbox: box},
		Outbox:       box,
		Completeness: domainlistings.CompletenessPolicy{Catalog: memory.NewCatalog([]string{"wifi"}, []string{"apartment"})},
		Logger:       logger,
	}
	cmdBus := commands.NewInMemoryBus()
	listingapp.RegisterCommands(cmdBus, svc)
	qBus := queries.NewInMemoryBus()
	listingapp.RegisterQueries(qBus, svc)
	availabilityapp.Register(qBus, svc)

	v := validation.New()
	cmds := middleware.ChainCommands(cmdBus,
		middleware.Validation(v),
		middleware.Authorization(middleware.RequireActor{}),
		middleware.OutboxFlush(box, logger),
		middleware.Idempotency(memory.NewIdempotencyStore(time.Hour), nil),
	)
	qs := middleware.ChainQueries(qBus, middleware.QueryValidation(v))

	return NewRouter(config.Config{Env: "test"}, obs.Middleware{Logger: logger}, obs.HealthHandlers{}, Handlers{
		Listing:             ListingHandler{Commands: cmds, Queries: qs, Logger: logger},
		Calendar:            CalendarHandler{Queries: qs, Logger: logger},
		PrincipalMiddleware: PrincipalMiddleware{Logger: logger}.Handle,
	})
}

type caller struct {
	id   string
	role string
}

var (
	owner  = caller{id: "owner-1", role: "owner"}
	tenant = caller{id: "tenant-1", role: "ROLE_TENANT"}
	nobody = caller{}
)

func do(t *testing.T, r http.Handler, who caller, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if who.id != "" {
		req.Header.Set(AccountIDHeader, who.id)
		req.Header.Set(AccountRoleHeader, who.role)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func listingBody(photos int) map[string]any {
	urls := make([]string, 0, photos)
	for i := 0; i < photos; i++ {
		urls = append(urls, fmt.Sprintf("https://img.example/%d.jpg", i))
	}
	return map[string]any{
		"title":       "Harbour flat",
		"description": "Two rooms over the water",
		"floor_plan":  map[string]int{"guests": 3, "bedrooms": 1, "beds": 2, "bathrooms": 1},
		"price":       map[string]any{"amount_cents": 12000, "currency": "EUR"},
		"address":     map[string]string{"street": "1 Quay", "city": "Oslo", "country": "NO"},
		"location":    map[string]float64{"lat": 59.9, "lon": 10.7},
		"type_id":     "apartment",
		"amenities":   []string{"wifi"},
		"photos":      urls,
	}
}

func createListing(t *testing.T, r http.Handler, photos int) string {
	t.Helper()
	rec := do(t, r, owner, http.MethodPost, "/api/v1/listings/owners/owner-1", listingBody(photos))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	return decode[dto.Listing](t, rec).ID
}

func TestListingLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	id := createListing(t, r, domainlistings.MinPhotos)

	if rec := do(t, r, owner, http.MethodPost, "/api/v1/listings/"+id+"/publish", nil); rec.Code != http.StatusOK {
		t.Fatalf("publish status = %d body = %s", rec.Code, rec.Body.String())
	}

	book := map[string]string{"from": "2026-07-01", "to": "2026-07-05"}
	rec := do(t, r, tenant, http.MethodPost, "/api/v1/listings/book/"+id, book, IdempotencyKeyHeader, "abc")
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d body = %s", rec.Code, rec.Body.String())
	}
	booked := decode[dto.BookingResult](t, rec)
	if booked.BookedAvailabilityID == "" {
		t.Fatal("missing bookedAvailabilityId")
	}

	replay := do(t, r, tenant, http.MethodPost, "/api/v1/listings/book/"+id, book, IdempotencyKeyHeader, "abc")
	if replay.Code != http.StatusCreated || decode[dto.BookingResult](t, replay).BookedAvailabilityID != booked.BookedAvailabilityID {
		t.Fatalf("replay = %d %s", replay.Code, replay.Body.String())
	}

	overlap := map[string]string{"from": "2026-07-05", "to": "2026-07-08"}
	if rec := do(t, r, tenant, http.MethodPost, "/api/v1/listings/book/"+id, overlap); rec.Code != http.StatusConflict {
		t.Fatalf("overlap status = %d, want 409", rec.Code)
	}

	rec = do(t, r, nobody, http.MethodGet, "/api/v1/listings/"+id+"/availability?from=2026-07-06&to=2026-07-09", nil)
	if rec.Code != http.StatusOK || !decode[dto.Availability](t, rec).Available {
		t.Fatalf("availability = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, nobody, http.MethodGet, "/api/v1/listings/"+id+"/calendar", nil)
	if rec.Code != http.StatusOK || len(decode[dto.Calendar](t, rec).Reservations) != 1 {
		t.Fatalf("calendar = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, nobody, http.MethodGet, "/api/v1/listings", nil)
	if rec.Code != http.StatusOK || len(decode[struct{ Items []dto.Listing }](t, rec).Items) != 1 {
		t.Fatalf("list = %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(t, r, owner, http.MethodPost, "/api/v1/listings/"+id+"/unlist", nil); rec.Code != http.StatusOK {
		t.Fatalf("unlist status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, r, owner, http.MethodDelete, "/api/v1/listings/"+id, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := do(t, r, nobody, http.MethodGet, "/api/v1/listings/"+id, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", rec.Code)
	}
}

func TestErrorStatuses(t *testing.T) {
	r := newTestRouter(t)
	draft := createListing(t, r, domainlistings.MinPhotos)
	sparse := createListing(t, r, 2)

	tests := []struct {
		name   string
		who    caller
		method string
		path   string
		body   any
		want   int
	}{
		{name: "book draft", who: tenant, method: http.MethodPost, path: "/api/v1/listings/book/" + draft,
			body: map[string]string{"from": "2026-08-01", "to": "2026-08-02"}, want: http.StatusBadRequest},
		{name: "book unknown", who: tenant, method: http.MethodPost, path: "/api/v1/listings/book/missing",
			body: map[string]string{"from": "2026-08-01", "to": "2026-08-02"}, want: http.StatusNotFound},
		{name: "book inverted", who: tenant, method: http.MethodPost, path: "/api/v1/listings/book/" + draft,
			body: map[string]string{"from": "2026-08-05", "to": "2026-08-02"}, want: http.StatusBadRequest},
		{name: "book bad date", who: tenant, method: http.MethodPost, path: "/api/v1/listings/book/" + draft,
			body: map[string]string{"from": "08/01/2026", "to": "2026-08-02"}, want: http.StatusBadRequest},
		{name: "book anonymous", who: nobody, method: http.MethodPost, path: "/api/v1/listings/book/" + draft,
			body: map[string]string{"from": "2026-08-01", "to": "2026-08-02"}, want: http.StatusUnauthorized},
		{name: "publish incomplete", who: owner, method: http.MethodPost, path: "/api/v1/listings/" + sparse + "/publish", want: http.StatusBadRequest},
		{name: "publish as tenant", who: tenant, method: http.MethodPost, path: "/api/v1/listings/" + draft + "/publish", want: http.StatusForbidden},
		{name: "create for someone else", who: owner, method: http.MethodPost, path: "/api/v1/listings/owners/owner-2",
			body: listingBody(1), want: http.StatusForbidden},
		{name: "patch bad photo", who: owner, method: http.MethodPatch, path: "/api/v1/listings/" + draft,
			body: map[string]any{"photos": []string{"nope"}}, want: http.StatusBadRequest},
		{name: "patch duplicate photos", who: owner, method: http.MethodPatch, path: "/api/v1/listings/" + draft,
			body: map[string]any{"photos": []string{"https://img.example/a.jpg", "https://img.example/a.jpg"}}, want: http.StatusBadRequest},
		{name: "availability without dates", who: nobody, method: http.MethodGet, path: "/api/v1/listings/" + draft + "/availability", want: http.StatusBadRequest},
		{name: "unlist inverted", who: owner, method: http.MethodPost, path: "/api/v1/listings/" + draft + "/unlist",
			body: map[string]string{"from": "2026-09-02", "to": "2026-09-01"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, tt.who, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestIncompleteListingNamesMissingFields(t *testing.T) {
	r := newTestRouter(t)
	id := createListing(t, r, 1)
	rec := do(t, r, owner, http.MethodPost, "/api/v1/listings/"+id+"/publish", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if len(body.Missing) != 1 || body.Missing[0] != "photos" {
		t.Fatalf("missing = %v", body.Missing)
	}
}

func TestUnlistOpenEnded(t *testing.T) {
	tests := []struct {
		name      string
		body      map[string]string
		freeRange string
		busyRange string
	}{
		{
			name:      "from only",
			body:      map[string]string{"from": "2027-01-01"},
			freeRange: "from=2026-05-01&to=2026-05-02",
			busyRange: "from=2030-05-01&to=2030-05-02",
		},
		{
			name:      "to only",
			body:      map[string]string{"to": "2027-01-01"},
			freeRange: "from=2027-01-02&to=2027-01-03",
			busyRange: "from=0001-01-01&to=0001-01-01",
		},
		{
			name:      "explicit full span",
			body:      map[string]string{"from": "0001-01-01", "to": "9999-12-31"},
			busyRange: "from=9999-12-31&to=9999-12-31",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			id := createListing(t, r, domainlistings.MinPhotos)
			do(t, r, owner, http.MethodPost, "/api/v1/listings/"+id+"/publish", nil)

			rec := do(t, r, owner, http.MethodPost, "/api/v1/listings/"+id+"/unlist", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("unlist status = %d body = %s", rec.Code, rec.Body.String())
			}
			rec = do(t, r, nobody, http.MethodGet, "/api/v1/listings/"+id+"/availability?"+tt.busyRange, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("availability status = %d body = %s", rec.Code, rec.Body.String())
			}
			if decode[dto.Availability](t, rec).Available {
				t.Fatalf("%s reported free inside the block", tt.busyRange)
			}
			if tt.freeRange == "" {
				return
			}
			rec = do(t, r, nobody, http.MethodGet, "/api/v1/listings/"+id+"/availability?"+tt.freeRange, nil)
			if !decode[dto.Availability](t, rec).Available {
				t.Fatalf("%s outside the block reported busy", tt.freeRange)
			}
		})
	}
}

func TestListIncludesDrafts(t *testing.T) {
	r := newTestRouter(t)
	createListing(t, r, 0)
	createListing(t, r, 0)
	id := createListing(t, r, domainlistings.MinPhotos)
	do(t, r, owner, http.MethodPost, "/api/v1/listings/"+id+"/publish", nil)

	tests := []struct {
		path string
		code int
		want int
	}{
		{path: "/api/v1/listings", code: http.StatusOK, want: 3},
		{path: "/api/v1/listings?state=published", code: http.StatusOK, want: 1},
		{path: "/api/v1/listings?state=DRAFT", code: http.StatusOK, want: 2},
		{path: "/api/v1/listings?state=archived", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, r, nobody, http.MethodGet, tt.path, nil)
			if rec.Code != tt.code {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			if got := len(decode[struct{ Items []dto.Listing }](t, rec).Items); got != tt.want {
				t.Fatalf("items = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTenantForbiddenOnMissingListing(t *testing.T) {
	r := newTestRouter(t)
	for _, action := range []string{"publish", "unlist"} {
		rec := do(t, r, tenant, http.MethodPost, "/api/v1/listings/-1/"+action, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s status = %d body = %s, want 403", action, rec.Code, rec.Body.String())
		}
	}
	if rec := do(t, r, owner, http.MethodPost, "/api/v1/listings/-1/unlist", nil); rec.Code != http.StatusNotFound {
		t.Errorf("owner unlist status = %d, want 404", rec.Code)
	}
}

func TestHealthRoutes(t *testing.T) {
	r := newTestRouter(t)
	if rec := do(t, r, nobody, http.MethodGet, "/livez", nil); rec.Code != http.StatusOK {
		t.Fatalf("livez = %d", rec.Code)
	}
	if rec := do(t, r, nobody, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
}
