package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/code"
	"edutrack/internal/response"
)

const qrSize = 320

// CodeHandler issues and shows session attendance codes.
type CodeHandler struct {
	svc *attendance.Service
	now Clock
	log zerolog.Logger
}

func NewCodeHandler(svc *attendance.Service, now Clock, log zerolog.Logger) *CodeHandler {
	return &CodeHandler{svc: svc, now: orNow(now), log: log.With().Str("component", "code_handler").Logger()}
}

// Issue godoc
// POST /v1/sessions/:session_id/code
// Rotates the session code. The previous code stops validating at once.
func (h *CodeHandler) Issue(c *gin.Context) {
	cd, err := h.svc.IssueCode(c.Request.Context(), auth.PersonFrom(c), c.Param("session_id"), h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	response.Success(c, http.StatusCreated, gin.H{"code": cd})
}

// Current godoc
// GET /v1/sessions/:session_id/code
func (h *CodeHandler) Current(c *gin.Context) {
	cd, err := h.svc.CurrentCode(c.Request.Context(), auth.PersonFrom(c), c.Param("session_id"), h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	response.Success(c, http.StatusOK, gin.H{"code": cd})
}

// QR godoc
// GET /v1/sessions/:session_id/code/qr.png
// Renders the current code as a PNG QR image.
func (h *CodeHandler) QR(c *gin.Context) {
	cd, err := h.svc.CurrentCode(c.Request.Context(), auth.PersonFrom(c), c.Param("session_id"), h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	png, err := code.QR(cd, qrSize)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
