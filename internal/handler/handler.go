package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edutrack/internal/analytics"
	"edutrack/internal/attendance"
	"edutrack/internal/code"
	"edutrack/internal/engagement"
	"edutrack/internal/identity"
	"edutrack/internal/response"
	"edutrack/internal/session"
	"edutrack/internal/timetable"
)

const dateLayout = "2006-01-02"

// Clock returns the current time. Handlers take one so tests can pin it.
type Clock func() time.Time

func orNow(now Clock) Clock {
	if now == nil {
		return time.Now
	}
	return now
}

// writeError maps domain errors onto the response envelope. Anything it does
// not recognise is logged and reported as an internal error.
func writeError(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, identity.ErrUnauthorized):
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized)
	case errors.Is(err, identity.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, timetable.ErrNotFound),
		errors.Is(err, code.ErrNoCode):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, attendance.ErrInvalidSession),
		errors.Is(err, code.ErrSessionEnded):
		response.FailWithFields(c, http.StatusConflict, response.ErrInvalidSession,
			map[string]string{"detail": err.Error()})
	case errors.Is(err, code.ErrInvalidCode):
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrInvalidCode,
			map[string]string{"reason": code.Reason(err)})
	case errors.Is(err, attendance.ErrNotEnrolled):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNotEnrolled)
	case errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, analytics.ErrInvalidWindow),
		errors.Is(err, analytics.ErrInvalidBucket),
		errors.Is(err, analytics.ErrInvalidDimension),
		errors.Is(err, engagement.ErrInvalid):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"detail": err.Error()})
	case errors.Is(err, code.ErrIssuanceExhausted):
		log.Error().Err(err).Str("path", c.FullPath()).Msg("code issuance exhausted")
		response.Fail(c, http.StatusInternalServerError, response.ErrIssuanceExhausted)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// parseDate reads a YYYY-MM-DD value in loc; empty yields fallback.
func parseDate(raw string, loc *time.Location, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.ParseInLocation(dateLayout, raw, loc)
}

// parseWindow turns inclusive from/to dates into a half-open window. Missing
// bounds default to the four weeks ending today.
func parseWindow(from, to string, loc *time.Location, now time.Time) (analytics.Window, map[string]string) {
	today := timetable.DateOf(now, loc)
	end, err := parseDate(to, loc, today)
	if err != nil {
		return analytics.Window{}, map[string]string{"to": "to must be a date formatted YYYY-MM-DD"}
	}
	start, err := parseDate(from, loc, end.AddDate(0, 0, -27))
	if err != nil {
		return analytics.Window{}, map[string]string{"from": "from must be a date formatted YYYY-MM-DD"}
	}
	return analytics.Window{From: start, To: end.AddDate(0, 0, 1)}, nil
}
