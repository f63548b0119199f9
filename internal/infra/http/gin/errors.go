package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"staykeeper/internal/app/access"
	"staykeeper/internal/app/validation"
	"staykeeper/internal/domain/availability"
	domainlistings "staykeeper/internal/domain/listings"
	"staykeeper/internal/domain/shared/daterange"
)

var errInvalidDate = errors.New("dates must use the YYYY-MM-DD format")

type errorBody struct {
	Error   string   `json:"error"`
	Fields  []string `json:"fields,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domainlistings.ErrNotFound), errors.Is(err, domainlistings.ErrAlreadyDeleted):
		return http.StatusNotFound
	case errors.Is(err, availability.ErrConflict), errors.Is(err, domainlistings.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, access.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domainlistings.ErrNotPublished),
		errors.Is(err, domainlistings.ErrIncompleteListing),
		errors.Is(err, daterange.ErrInvalidRange),
		errors.Is(err, daterange.ErrMissingDate),
		errors.Is(err, validation.ErrInvalid),
		errors.Is(err, errInvalidDate),
		isDomainValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isDomainValidation(err error) bool {
	for _, target := range []error{
		domainlistings.ErrTitleRequired,
		domainlistings.ErrInvalidPrice,
		domainlistings.ErrInvalidLocation,
		domainlistings.ErrInvalidFloorPlan,
		domainlistings.ErrInvalidPhoto,
		domainlistings.ErrDuplicatePhoto,
		domainlistings.ErrOwnerRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var incomplete *domainlistings.IncompleteError
	if errors.As(err, &incomplete) {
		body.Missing = incomplete.Missing
	}
	var invalid *validation.Error
	if errors.As(err, &invalid) {
		for _, f := range invalid.Fields {
			body.Fields = append(body.Fields, f.Field)
		}
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		body.Error = "internal error"
	}
	if logger != nil && status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "listing request failed",
			"status", status, "error", err, "path", c.FullPath(), "account_id", currentActor(c).AccountID)
	}
	c.AbortWithStatusJSON(status, body)
}
