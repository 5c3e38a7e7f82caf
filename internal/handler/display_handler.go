package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/code"
	"edutrack/internal/identity"
	"edutrack/internal/response"
	"edutrack/internal/roster"
	"edutrack/internal/session"
	"edutrack/internal/timetable"
)

const recentFeedSize = 8

// DisplayHandler feeds the classroom screen, which polls it.
type DisplayHandler struct {
	svc      *attendance.Service
	agg      *roster.Aggregator
	tt       *timetable.Timetable
	resolver session.Resolver
	poll     time.Duration
	now      Clock
	log      zerolog.Logger
}

func NewDisplayHandler(svc *attendance.Service, agg *roster.Aggregator, tt *timetable.Timetable, resolver session.Resolver, poll time.Duration, now Clock, log zerolog.Logger) *DisplayHandler {
	return &DisplayHandler{
		svc:      svc,
		agg:      agg,
		tt:       tt,
		resolver: resolver,
		poll:     poll,
		now:      orNow(now),
		log:      log.With().Str("component", "display_handler").Logger(),
	}
}

// DisplayView is the room screen payload. Code is only filled in for
// viewers allowed to see it.
type DisplayView struct {
	Room                string           `json:"room"`
	Session             *session.Session `json:"session"`
	State               session.State    `json:"state,omitempty"`
	Stats               *roster.Stats    `json:"stats,omitempty"`
	Code                *code.Code       `json:"code,omitempty"`
	Recent              []roster.Row     `json:"recent"`
	Next                *session.Session `json:"next,omitempty"`
	RefreshAfterSeconds int              `json:"refresh_after_seconds"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// Room godoc
// GET /v1/display/rooms/:room
func (h *DisplayHandler) Room(c *gin.Context) {
	actor := auth.PersonFrom(c)
	if err := identity.Authorize(actor, identity.CapViewDisplay, ""); err != nil {
		writeError(c, h.log, err)
		return
	}
	ctx := c.Request.Context()
	now := h.now()
	room := c.Param("room")
	view := DisplayView{
		Room:                room,
		Recent:              []roster.Row{},
		RefreshAfterSeconds: int(h.poll / time.Second),
		GeneratedAt:         now.UTC(),
	}

	if s, ok := h.resolver.ResolveRoom(h.tt, room, now); ok {
		view.Session = &s
		view.State = h.resolver.State(s, now)
		if s.Slot.Instructional() {
			stats, err := h.agg.StatsFor(ctx, s, now)
			if err != nil {
				writeError(c, h.log, err)
				return
			}
			view.Stats = &stats
			recent, err := h.agg.Recent(ctx, s, recentFeedSize)
			if err != nil {
				writeError(c, h.log, err)
				return
			}
			view.Recent = recent

			if actor.Can(identity.CapViewCode, s.Slot.OwnerID) {
				cd, err := h.svc.SessionCode(ctx, s, now)
				switch {
				case err == nil:
					view.Code = &cd
				case errors.Is(err, code.ErrNoCode):
				default:
					writeError(c, h.log, err)
					return
				}
			}
		}
	}
	view.Next = h.next(room, now, view.Session)
	response.Success(c, http.StatusOK, view)
}

// next is the room's first session starting after now today, skipping the
// one already shown.
func (h *DisplayHandler) next(room string, now time.Time, current *session.Session) *session.Session {
	date := timetable.DateOf(now, h.tt.Location())
	for _, slot := range h.tt.SlotsInRoom(room, date) {
		s := session.Of(slot, date)
		if !s.Start.After(now) || (current != nil && current.ID == s.ID) {
			continue
		}
		return &s
	}
	return nil
}
