package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"edutrack/internal/auth"
	"edutrack/internal/config"
	"edutrack/internal/handler"
	"edutrack/internal/httpmiddleware"
	"edutrack/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attendance *handler.AttendanceHandler
	Code       *handler.CodeHandler
	Report     *handler.ReportHandler
	Display    *handler.DisplayHandler
	Engagement *handler.EngagementHandler
	Health     *handler.HealthHandler
}

// SetupRouter wires middleware and routes onto a new gin engine.
func SetupRouter(cfg config.App, h *Handlers, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsConfig))

	r.Use(response.RequestIDMiddleware())
	r.Use(httpmiddleware.RequestLogger(log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.SecurityHeaders(cfg.Production()))
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Health.Healthz)

	v1 := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))
	{
		v1.GET("/me/session", h.Attendance.MySession)
		v1.GET("/me/schedule", h.Attendance.MySchedule)
		v1.POST("/attendance/mark", h.Attendance.Mark)

		sessions := v1.Group("/sessions/:session_id")
		sessions.GET("/roster", h.Attendance.Roster)
		sessions.GET("/stats", h.Attendance.Stats)
		sessions.PUT("/attendance/:person_id", h.Attendance.Override)
		sessions.GET("/attendance/:person_id/history", h.Attendance.History)
		sessions.POST("/code", h.Code.Issue)
		sessions.GET("/code", h.Code.Current)
		sessions.GET("/code/qr.png", h.Code.QR)

		v1.GET("/people/:person_id/records", h.Report.Records)
		v1.GET("/people/:person_id/summary", h.Report.Summary)
		v1.GET("/analytics/trend", h.Report.Trend)
		v1.GET("/analytics/breakdown", h.Report.Breakdown)
		v1.GET("/analytics/volume", h.Report.Volume)

		v1.POST("/goals", h.Engagement.CreateGoal)
		v1.GET("/people/:person_id/goals", h.Engagement.Goals)
		v1.POST("/tasks/complete", h.Engagement.CompleteTask)
		v1.GET("/people/:person_id/tasks", h.Engagement.Tasks)

		v1.GET("/display/rooms/:room", h.Display.Room)
	}
	return r
}
