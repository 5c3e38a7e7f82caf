package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edutrack/internal/analytics"
	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/identity"
	"edutrack/internal/response"
	"edutrack/internal/timetable"
	"edutrack/internal/validator"
)

// ReportHandler serves person records and analytics over closed sessions.
type ReportHandler struct {
	svc    *attendance.Service
	rollup *analytics.Rollup
	tt     *timetable.Timetable
	now    Clock
	log    zerolog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(svc *attendance.Service, rollup *analytics.Rollup, tt *timetable.Timetable, now Clock, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		svc:    svc,
		rollup: rollup,
		tt:     tt,
		now:    orNow(now),
		log:    log.With().Str("component", "report_handler").Logger(),
	}
}

// WindowQuery holds inclusive YYYY-MM-DD bounds.
type WindowQuery struct {
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// TrendQuery selects a trend series.
type TrendQuery struct {
	WindowQuery
	Bucket string `form:"bucket" binding:"omitempty,oneof=day week"`
	Owner  string `form:"owner" binding:"omitempty,max=128"`
}

// BreakdownQuery selects a breakdown axis.
type BreakdownQuery struct {
	WindowQuery
	Dimension string `form:"dimension" binding:"required,oneof=status method subject room weekday"`
	Owner     string `form:"owner" binding:"omitempty,max=128"`
}

// VolumeQuery narrows record counts to one owner.
type VolumeQuery struct {
	Owner string `form:"owner" binding:"omitempty,max=128"`
}

// Records godoc
// GET /v1/people/:person_id/records
// Lists a person's authoritative entries, newest first.
func (h *ReportHandler) Records(c *gin.Context) {
	entries, err := h.svc.Records(c.Request.Context(), auth.PersonFrom(c), c.Param("person_id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"records": entries})
}

// Summary godoc
// GET /v1/people/:person_id/summary?from=&to=
func (h *ReportHandler) Summary(c *gin.Context) {
	personID := c.Param("person_id")
	if err := identity.Authorize(auth.PersonFrom(c), identity.CapViewHistory, personID); err != nil {
		writeError(c, h.log, err)
		return
	}
	var q WindowQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	now := h.now()
	w, fields := parseWindow(q.From, q.To, h.tt.Location(), now)
	if fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sum, err := h.rollup.Summary(c.Request.Context(), personID, w, now)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"summary": sum})
}

// Trend godoc
// GET /v1/analytics/trend?from=&to=&bucket=&owner=
func (h *ReportHandler) Trend(c *gin.Context) {
	var q TrendQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	scope, ok := h.scope(c, q.Owner)
	if !ok {
		return
	}
	now := h.now()
	w, fields := parseWindow(q.From, q.To, h.tt.Location(), now)
	if fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	bucket := analytics.BucketDay
	if q.Bucket != "" {
		bucket = analytics.Bucket(q.Bucket)
	}

	points, err := h.rollup.Trend(c.Request.Context(), scope, w, bucket, now)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"scope": scope, "bucket": bucket, "trend": points})
}

// Breakdown godoc
// GET /v1/analytics/breakdown?dimension=&from=&to=&owner=
func (h *ReportHandler) Breakdown(c *gin.Context) {
	var q BreakdownQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	scope, ok := h.scope(c, q.Owner)
	if !ok {
		return
	}
	now := h.now()
	w, fields := parseWindow(q.From, q.To, h.tt.Location(), now)
	if fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	counts, err := h.rollup.Breakdown(c.Request.Context(), scope, w, analytics.Dimension(q.Dimension), now)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"scope": scope, "dimension": q.Dimension, "breakdown": counts})
}

// Volume godoc
// GET /v1/analytics/volume?owner=
// Counts authoritative records in total and for today.
func (h *ReportHandler) Volume(c *gin.Context) {
	var q VolumeQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	scope, ok := h.scope(c, q.Owner)
	if !ok {
		return
	}
	v, err := h.rollup.Volume(c.Request.Context(), scope, h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"scope": scope, "volume": v})
}

// scope authorizes the analytics scope. Callers limited to their own data
// get their own scope when they ask for none.
func (h *ReportHandler) scope(c *gin.Context, owner string) (string, bool) {
	actor := auth.PersonFrom(c)
	if owner == "" && !actor.Can(identity.CapViewAnalytics, "") && actor.Can(identity.CapViewAnalytics, actor.ID) {
		owner = actor.ID
	}
	if err := identity.Authorize(actor, identity.CapViewAnalytics, owner); err != nil {
		writeError(c, h.log, err)
		return "", false
	}
	return owner, true
}
