package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/identity"
	"edutrack/internal/response"
	"edutrack/internal/roster"
	"edutrack/internal/session"
	"edutrack/internal/timetable"
	"edutrack/internal/validator"
)

// AttendanceHandler serves marking, overrides and per-session reads.
type AttendanceHandler struct {
	svc      *attendance.Service
	agg      *roster.Aggregator
	tt       *timetable.Timetable
	resolver session.Resolver
	now      Clock
	log      zerolog.Logger
}

// NewAttendanceHandler creates a new AttendanceHandler.
func NewAttendanceHandler(svc *attendance.Service, agg *roster.Aggregator, tt *timetable.Timetable, resolver session.Resolver, now Clock, log zerolog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		svc:      svc,
		agg:      agg,
		tt:       tt,
		resolver: resolver,
		now:      orNow(now),
		log:      log.With().Str("component", "attendance_handler").Logger(),
	}
}

type mySessionView struct {
	Session  *session.Session  `json:"session"`
	State    session.State     `json:"state,omitempty"`
	Markable bool              `json:"markable"`
	Entry    *attendance.Entry `json:"entry,omitempty"`
}

// MySession godoc
// GET /v1/me/session
// Returns the caller's live session, if any, with their current entry.
func (h *AttendanceHandler) MySession(c *gin.Context) {
	actor := auth.PersonFrom(c)
	if err := identity.Authenticate(actor); err != nil {
		writeError(c, h.log, err)
		return
	}
	now := h.now()
	view := mySessionView{}
	s, ok := h.resolver.Resolve(h.tt, actor.ID, now)
	if ok {
		view.Session = &s
		view.State = h.resolver.State(s, now)
		view.Markable = s.Slot.Instructional() && h.tt.IsEnrolled(s.Slot, actor.ID)
		if view.Markable {
			e, found, err := h.svc.Repository().AuthoritativeFor(c.Request.Context(), s.ID, actor.ID)
			if err != nil {
				writeError(c, h.log, err)
				return
			}
			if found {
				view.Entry = &e
			}
		}
	}
	response.Success(c, http.StatusOK, view)
}

type scheduleItem struct {
	SessionID string         `json:"session_id"`
	Slot      timetable.Slot `json:"slot"`
	State     session.State  `json:"state"`
}

// MySchedule godoc
// GET /v1/me/schedule?date=YYYY-MM-DD
// Lists the caller's slots for a date, defaulting to today.
func (h *AttendanceHandler) MySchedule(c *gin.Context) {
	actor := auth.PersonFrom(c)
	if err := identity.Authenticate(actor); err != nil {
		writeError(c, h.log, err)
		return
	}
	now := h.now()
	loc := h.tt.Location()
	date, err := parseDate(c.Query("date"), loc, timetable.DateOf(now, loc))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"date": "date must be formatted YYYY-MM-DD"})
		return
	}

	slots, err := h.tt.SlotsFor(actor.ID, date)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	items := make([]scheduleItem, 0, len(slots))
	for _, slot := range slots {
		s := session.Of(slot, date)
		items = append(items, scheduleItem{SessionID: s.ID, Slot: slot, State: h.resolver.State(s, now)})
	}
	response.Success(c, http.StatusOK, gin.H{"date": date.Format(dateLayout), "schedule": items})
}

// MarkRequest is the payload for a self mark.
type MarkRequest struct {
	SessionID string `json:"session_id" binding:"omitempty,max=128"`
	Code      string `json:"code" binding:"required,max=32"`
}

// Mark godoc
// POST /v1/attendance/mark
// Records the caller in their live session using the displayed code.
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req MarkRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	e, err := h.svc.MarkSelf(c.Request.Context(), auth.PersonFrom(c), req.SessionID, req.Code, h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"entry": e})
}

// OverrideRequest is the payload for a manual status change.
type OverrideRequest struct {
	Status string `json:"status" binding:"required,status"`
}

// Override godoc
// PUT /v1/sessions/:session_id/attendance/:person_id
// Sets a person's status in a session. The previous entries stay in history.
func (h *AttendanceHandler) Override(c *gin.Context) {
	var req OverrideRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	e, err := h.svc.Override(c.Request.Context(), auth.PersonFrom(c),
		c.Param("session_id"), c.Param("person_id"), attendance.Status(req.Status), h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"entry": e})
}

// Roster godoc
// GET /v1/sessions/:session_id/roster
func (h *AttendanceHandler) Roster(c *gin.Context) {
	s, ok := h.ownedSession(c, identity.CapViewRoster)
	if !ok {
		return
	}
	rows, stats, err := h.agg.RosterFor(c.Request.Context(), s, h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": s, "stats": stats, "roster": rows})
}

// Stats godoc
// GET /v1/sessions/:session_id/stats
func (h *AttendanceHandler) Stats(c *gin.Context) {
	s, ok := h.ownedSession(c, identity.CapViewRoster)
	if !ok {
		return
	}
	stats, err := h.agg.StatsFor(c.Request.Context(), s, h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"stats": stats})
}

// History godoc
// GET /v1/sessions/:session_id/attendance/:person_id/history
// Returns every entry for the person in the session, oldest first.
func (h *AttendanceHandler) History(c *gin.Context) {
	entries, err := h.svc.History(c.Request.Context(), auth.PersonFrom(c), c.Param("session_id"), c.Param("person_id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"history": entries})
}

// ownedSession resolves the path session and checks cap against its owner.
// It writes the error response itself.
func (h *AttendanceHandler) ownedSession(c *gin.Context, cp identity.Capability) (session.Session, bool) {
	s, err := session.Occurrence(h.tt, c.Param("session_id"))
	if err == nil {
		err = identity.Authorize(auth.PersonFrom(c), cp, s.Slot.OwnerID)
	}
	if err != nil {
		writeError(c, h.log, err)
		return session.Session{}, false
	}
	return s, true
}
