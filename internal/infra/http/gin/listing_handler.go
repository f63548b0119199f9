package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"staykeeper/internal/app/commands"
	"staykeeper/internal/app/dto"
	listingapp "staykeeper/internal/app/handlers/listings"
	"staykeeper/internal/app/queries"
	"staykeeper/internal/domain/shared/daterange"
)

const dateLayout = "2006-01-02"

type ListingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type rangeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (h ListingHandler) Create(c *gin.Context) {
	var fields dto.ListingFields
	if !h.bind(c, &fields) {
		return
	}
	cmd := listingapp.CreateListingCommand{Actor: currentActor(c), OwnerID: c.Param("ownerId"), Fields: fields}
	result, err := commands.Dispatch[listingapp.CreateListingCommand, dto.Listing](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ListingHandler) Patch(c *gin.Context) {
	var fields dto.ListingFields
	if !h.bind(c, &fields) {
		return
	}
	cmd := listingapp.PatchListingCommand{Actor: currentActor(c), ListingID: c.Param("id"), Fields: fields}
	result, err := commands.Dispatch[listingapp.PatchListingCommand, dto.Listing](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ListingHandler) Publish(c *gin.Context) {
	cmd := listingapp.PublishListingCommand{Actor: currentActor(c), ListingID: c.Param("id")}
	result, err := commands.Dispatch[listingapp.PublishListingCommand, dto.Listing](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Unlist accepts an optional body. A missing bound is open-ended, so no body
// blocks every date.
func (h ListingHandler) Unlist(c *gin.Context) {
	var req rangeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, h.Logger, errInvalidDate)
		return
	}
	from, to, err := parseOpenRange(req.From, req.To)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := listingapp.UnlistListingCommand{Actor: currentActor(c), ListingID: c.Param("id"), From: from, To: to}
	result, err := commands.Dispatch[listingapp.UnlistListingCommand, dto.Listing](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ListingHandler) Delete(c *gin.Context) {
	cmd := listingapp.DeleteListingCommand{Actor: currentActor(c), ListingID: c.Param("id")}
	if _, err := commands.Dispatch[listingapp.DeleteListingCommand, struct{}](c.Request.Context(), h.Commands, cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h ListingHandler) Book(c *gin.Context) {
	var req rangeRequest
	if !h.bind(c, &req) {
		return
	}
	from, to, err := parseClosedRange(req.From, req.To)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := listingapp.BookListingCommand{
		Actor:           currentActor(c),
		ListingID:       c.Param("id"),
		From:            &from,
		To:              &to,
		IdempotencyKeyV: strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)),
	}
	result, err := commands.Dispatch[listingapp.BookListingCommand, *dto.BookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ListingHandler) Get(c *gin.Context) {
	q := listingapp.GetListingQuery{ListingID: c.Param("id")}
	result, err := queries.Ask[listingapp.GetListingQuery, dto.Listing](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ListingHandler) ByOwner(c *gin.Context) {
	q := listingapp.OwnerListingsQuery{OwnerID: c.Param("ownerId")}
	result, err := queries.Ask[listingapp.OwnerListingsQuery, []dto.Listing](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(result)})
}

// List serves every non-deleted listing; ?state= narrows it to one state.
func (h ListingHandler) List(c *gin.Context) {
	q := listingapp.ListListingsQuery{State: strings.ToUpper(strings.TrimSpace(c.Query("state")))}
	result, err := queries.Ask[listingapp.ListListingsQuery, []dto.Listing](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(result)})
}

func (h ListingHandler) Availability(c *gin.Context) {
	from, to, err := parseClosedRange(c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	q := listingapp.CheckAvailabilityQuery{ListingID: c.Param("id"), From: &from, To: &to}
	result, err := queries.Ask[listingapp.CheckAvailabilityQuery, dto.Availability](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ListingHandler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func nonNil(items []dto.Listing) []dto.Listing {
	if items == nil {
		return []dto.Listing{}
	}
	return items
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	return t, nil
}

// parseClosedRange requires both bounds.
func parseClosedRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	if strings.TrimSpace(fromRaw) == "" || strings.TrimSpace(toRaw) == "" {
		return time.Time{}, time.Time{}, daterange.ErrMissingDate
	}
	from, err := parseDate(fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate(toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, daterange.ErrInvalidRange
	}
	return from, to, nil
}

// parseOpenRange leaves a blank bound nil; the command treats it as
// open-ended.
func parseOpenRange(fromRaw, toRaw string) (*time.Time, *time.Time, error) {
	from, err := parseOptionalDate(fromRaw)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseOptionalDate(toRaw)
	if err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, daterange.ErrInvalidRange
	}
	return from, to, nil
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := parseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ ListingHTTP = ListingHandler{}
