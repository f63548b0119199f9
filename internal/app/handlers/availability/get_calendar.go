package availability

import (
	"context"

	"staykeeper/internal/app/dto"
	"staykeeper/internal/app/queries"
	domainavailability "staykeeper/internal/domain/availability"
	domainlistings "staykeeper/internal/domain/listings"
)

const getCalendarKey = "availability.calendar"

type GetCalendarQuery struct {
	ListingID string `validate:"required"`
}

func (q GetCalendarQuery) Key() string { return getCalendarKey }

type CalendarReader interface {
	Calendar(ctx context.Context, id domainlistings.ListingID) (*domainavailability.Calendar, error)
}

type GetCalendarHandler struct {
	Reader CalendarReader
}

func (h *GetCalendarHandler) Handle(ctx context.Context, q GetCalendarQuery) (dto.Calendar, error) {
	calendar, err := h.Reader.Calendar(ctx, domainlistings.ListingID(q.ListingID))
	if err != nil {
		return dto.Calendar{}, err
	}
	return dto.MapCalendar(calendar), nil
}

func Register(bus *queries.InMemoryBus, reader CalendarReader) {
	queries.RegisterHandler[GetCalendarQuery, dto.Calendar](bus, getCalendarKey, &GetCalendarHandler{Reader: reader})
}

var _ queries.Handler[GetCalendarQuery, dto.Calendar] = (*GetCalendarHandler)(nil)
