package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"staykeeper/internal/app/dto"
	availabilityapp "staykeeper/internal/app/handlers/availability"
	"staykeeper/internal/app/queries"
)

type CalendarHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h CalendarHandler) Calendar(c *gin.Context) {
	query := availabilityapp.GetCalendarQuery{ListingID: c.Param("id")}
	result, err := queries.Ask[availabilityapp.GetCalendarQuery, dto.Calendar](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ CalendarHTTP = CalendarHandler{}
