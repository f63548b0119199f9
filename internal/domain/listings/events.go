package listings

import (
	"time"

	"staykeeper/internal/domain/shared/daterange"
)

type ListingCreated struct {
	ListingID ListingID
	Owner     OwnerID
	At        time.Time
}

func (e ListingCreated) EventName() string     { return "listing.created" }
func (e ListingCreated) AggregateID() string   { return string(e.ListingID) }
func (e ListingCreated) OccurredAt() time.Time { return e.At }

type ListingPublished struct {
	ListingID ListingID
	Owner     OwnerID
	From      ListingState
	At        time.Time
}

func (e ListingPublished) EventName() string     { return "listing.published" }
func (e ListingPublished) AggregateID() string   { return string(e.ListingID) }
func (e ListingPublished) OccurredAt() time.Time { return e.At }

type ListingUnlisted struct {
	ListingID ListingID
	Range     daterange.DateRange
	From      ListingState
	To        ListingState
	At        time.Time
}

func (e ListingUnlisted) EventName() string     { return "listing.unlisted" }
func (e ListingUnlisted) AggregateID() string   { return string(e.ListingID) }
func (e ListingUnlisted) OccurredAt() time.Time { return e.At }

type ListingUpdated struct {
	ListingID ListingID
	At        time.Time
}

func (e ListingUpdated) EventName() string     { return "listing.updated" }
func (e ListingUpdated) AggregateID() string   { return string(e.ListingID) }
func (e ListingUpdated) OccurredAt() time.Time { return e.At }

type ListingDeleted struct {
	ListingID ListingID
	Owner     OwnerID
	At        time.Time
}

func (e ListingDeleted) EventName() string     { return "listing.deleted" }
func (e ListingDeleted) AggregateID() string   { return string(e.ListingID) }
func (e ListingDeleted) OccurredAt() time.Time { return e.At }
