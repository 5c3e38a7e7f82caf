package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edutrack/internal/auth"
	"edutrack/internal/engagement"
	"edutrack/internal/response"
	"edutrack/internal/validator"
)

// EngagementHandler serves personal goals and completed tasks.
type EngagementHandler struct {
	svc *engagement.Service
	now Clock
	log zerolog.Logger
}

func NewEngagementHandler(svc *engagement.Service, now Clock, log zerolog.Logger) *EngagementHandler {
	return &EngagementHandler{
		svc: svc,
		now: orNow(now),
		log: log.With().Str("component", "engagement_handler").Logger(),
	}
}

type GoalRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"max=2000"`
	TargetDate  string `json:"target_date" binding:"omitempty,datetime=2006-01-02"`
}

type TaskRequest struct {
	TaskID string `json:"task_id" binding:"required,max=128"`
	Title  string `json:"title" binding:"max=200"`
}

// CreateGoal godoc
// POST /v1/goals
func (h *EngagementHandler) CreateGoal(c *gin.Context) {
	var req GoalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	g, err := h.svc.CreateGoal(c.Request.Context(), auth.PersonFrom(c), engagement.GoalInput{
		Title:       req.Title,
		Description: req.Description,
		TargetDate:  req.TargetDate,
	}, h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"goal": g})
}

// Goals godoc
// GET /v1/people/:person_id/goals
func (h *EngagementHandler) Goals(c *gin.Context) {
	goals, err := h.svc.Goals(c.Request.Context(), auth.PersonFrom(c), c.Param("person_id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"goals": goals})
}

// CompleteTask godoc
// POST /v1/tasks/complete
func (h *EngagementHandler) CompleteTask(c *gin.Context) {
	var req TaskRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	t, err := h.svc.CompleteTask(c.Request.Context(), auth.PersonFrom(c), engagement.TaskInput{
		TaskID: req.TaskID,
		Title:  req.Title,
	}, h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"task": t})
}

// Tasks godoc
// GET /v1/people/:person_id/tasks
func (h *EngagementHandler) Tasks(c *gin.Context) {
	tasks, err := h.svc.Tasks(c.Request.Context(), auth.PersonFrom(c), c.Param("person_id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tasks": tasks})
}
