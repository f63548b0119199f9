package listings

import (
	"context"
	"time"

	"staykeeper/internal/app/access"
	"staykeeper/internal/app/commands"
	"staykeeper/internal/app/coordinator"
	"staykeeper/internal/app/dto"
	"staykeeper/internal/app/middleware"
	"staykeeper/internal/domain/availability"
	domainlistings "staykeeper/internal/domain/listings"
	"staykeeper/internal/domain/shared/daterange"
)

const (
	createListingKey  = "listings.create"
	patchListingKey   = "listings.patch"
	publishListingKey = "listings.publish"
	unlistListingKey  = "listings.unlist"
	deleteListingKey  = "listings.delete"
	bookListingKey    = "listings.book"
)

// Service is the listing workflow the handlers delegate to.
type Service interface {
	Create(ctx context.Context, actor access.Actor, in coordinator.CreateInput) (*domainlistings.Listing, error)
	Patch(ctx context.Context, actor access.Actor, id domainlistings.ListingID, params domainlistings.PatchParams) (*domainlistings.Listing, error)
	Publish(ctx context.Context, actor access.Actor, id domainlistings.ListingID) (*domainlistings.Listing, error)
	Unlist(ctx context.Context, actor access.Actor, id domainlistings.ListingID, r daterange.DateRange) (*domainlistings.Listing, error)
	Delete(ctx context.Context, actor access.Actor, id domainlistings.ListingID) error
	Book(ctx context.Context, actor access.Actor, id domainlistings.ListingID, r daterange.DateRange) (availability.Reservation, error)
	IsAvailable(ctx context.Context, id domainlistings.ListingID, r daterange.DateRange) (bool, error)
	Get(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error)
	ListByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error)
	List(ctx context.Context, state domainlistings.ListingState) ([]*domainlistings.Listing, error)
	Calendar(ctx context.Context, id domainlistings.ListingID) (*availability.Calendar, error)
}

type CreateListingCommand struct {
	Actor   access.Actor
	OwnerID string `validate:"required"`
	Fields  dto.ListingFields
}

func (c CreateListingCommand) Key() string             { return createListingKey }
func (c CreateListingCommand) Principal() access.Actor { return c.Actor }

type PatchListingCommand struct {
	Actor     access.Actor
	ListingID string `validate:"required"`
	Fields    dto.ListingFields
}

func (c PatchListingCommand) Key() string             { return patchListingKey }
func (c PatchListingCommand) Principal() access.Actor { return c.Actor }

type PublishListingCommand struct {
	Actor     access.Actor
	ListingID string `validate:"required"`
}

func (c PublishListingCommand) Key() string             { return publishListingKey }
func (c PublishListingCommand) Principal() access.Actor { return c.Actor }

// UnlistListingCommand blocks [From, To]. A nil bound is open-ended, so
// leaving both nil blocks every date.
type UnlistListingCommand struct {
	Actor     access.Actor
	ListingID string `validate:"required"`
	From      *time.Time
	To        *time.Time
}

func (c UnlistListingCommand) Key() string             { return unlistListingKey }
func (c UnlistListingCommand) Principal() access.Actor { return c.Actor }

type DeleteListingCommand struct {
	Actor     access.Actor
	ListingID string `validate:"required"`
}

func (c DeleteListingCommand) Key() string             { return deleteListingKey }
func (c DeleteListingCommand) Principal() access.Actor { return c.Actor }

type BookListingCommand struct {
	Actor           access.Actor
	ListingID       string    `validate:"required"`
	From            *time.Time `validate:"required"`
	To              *time.Time `validate:"required"`
	IdempotencyKeyV string     `validate:"omitempty,max=128"`
}

func (c BookListingCommand) Key() string             { return bookListingKey }
func (c BookListingCommand) Principal() access.Actor { return c.Actor }
func (c BookListingCommand) IdempotencyKey() string  { return c.IdempotencyKeyV }
func (c BookListingCommand) ResultPrototype() any    { return &dto.BookingResult{} }

type CommandHandlers struct {
	Service Service
}

func (h CommandHandlers) Create(ctx context.Context, cmd CreateListingCommand) (dto.Listing, error) {
	l, err := h.Service.Create(ctx, cmd.Actor, coordinator.CreateInput{
		Owner: domainlistings.OwnerID(cmd.OwnerID),
		Patch: cmd.Fields.PatchParams(),
	})
	if err != nil {
		return dto.Listing{}, err
	}
	return dto.MapListing(l), nil
}

func (h CommandHandlers) Patch(ctx context.Context, cmd PatchListingCommand) (dto.Listing, error) {
	l, err := h.Service.Patch(ctx, cmd.Actor, domainlistings.ListingID(cmd.ListingID), cmd.Fields.PatchParams())
	if err != nil {
		return dto.Listing{}, err
	}
	return dto.MapListing(l), nil
}

func (h CommandHandlers) Publish(ctx context.Context, cmd PublishListingCommand) (dto.Listing, error) {
	l, err := h.Service.Publish(ctx, cmd.Actor, domainlistings.ListingID(cmd.ListingID))
	if err != nil {
		return dto.Listing{}, err
	}
	return dto.MapListing(l), nil
}

func (h CommandHandlers) Unlist(ctx context.Context, cmd UnlistListingCommand) (dto.Listing, error) {
	r, err := daterange.New(orDefault(cmd.From, daterange.MinDate), orDefault(cmd.To, daterange.MaxDate))
	if err != nil {
		return dto.Listing{}, err
	}
	l, err := h.Service.Unlist(ctx, cmd.Actor, domainlistings.ListingID(cmd.ListingID), r)
	if err != nil {
		return dto.Listing{}, err
	}
	return dto.MapListing(l), nil
}

func (h CommandHandlers) Delete(ctx context.Context, cmd DeleteListingCommand) (struct{}, error) {
	return struct{}{}, h.Service.Delete(ctx, cmd.Actor, domainlistings.ListingID(cmd.ListingID))
}

func (h CommandHandlers) Book(ctx context.Context, cmd BookListingCommand) (*dto.BookingResult, error) {
	r, err := closedRange(cmd.From, cmd.To)
	if err != nil {
		return nil, err
	}
	res, err := h.Service.Book(ctx, cmd.Actor, domainlistings.ListingID(cmd.ListingID), r)
	if err != nil {
		return nil, err
	}
	return &dto.BookingResult{
		BookedAvailabilityID: string(res.ID),
		ListingID:            res.ListingID,
		Range:                dto.MapRange(res.Range),
	}, nil
}

func orDefault(t *time.Time, def time.Time) time.Time {
	if t == nil {
		return def
	}
	return *t
}

// closedRange needs both bounds present. MinDate is a legal value.
func closedRange(from, to *time.Time) (daterange.DateRange, error) {
	if from == nil || to == nil {
		return daterange.DateRange{}, daterange.ErrMissingDate
	}
	return daterange.New(*from, *to)
}

// RegisterCommands wires every listing command onto bus.
func RegisterCommands(bus *commands.InMemoryBus, svc Service) {
	h := CommandHandlers{Service: svc}
	commands.RegisterHandler[CreateListingCommand, dto.Listing](bus, createListingKey, commands.HandlerFunc[CreateListingCommand, dto.Listing](h.Create))
	commands.RegisterHandler[PatchListingCommand, dto.Listing](bus, patchListingKey, commands.HandlerFunc[PatchListingCommand, dto.Listing](h.Patch))
	commands.RegisterHandler[PublishListingCommand, dto.Listing](bus, publishListingKey, commands.HandlerFunc[PublishListingCommand, dto.Listing](h.Publish))
	commands.RegisterHandler[UnlistListingCommand, dto.Listing](bus, unlistListingKey, commands.HandlerFunc[UnlistListingCommand, dto.Listing](h.Unlist))
	commands.RegisterHandler[DeleteListingCommand, struct{}](bus, deleteListingKey, commands.HandlerFunc[DeleteListingCommand, struct{}](h.Delete))
	commands.RegisterHandler[BookListingCommand, *dto.BookingResult](bus, bookListingKey, commands.HandlerFunc[BookListingCommand, *dto.BookingResult](h.Book))
}

var (
	_ middleware.IdempotentCommand = BookListingCommand{}
	_ middleware.ActorCommand      = BookListingCommand{}
	_ Service                      = (*coordinator.Coordinator)(nil)
)
