package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"edutrack/internal/response"
)

// Checker reports whether one backing service is reachable.
type Checker func(ctx context.Context) bool

// HealthHandler reports the state of the configured backends.
type HealthHandler struct {
	checks map[string]Checker
}

func NewHealthHandler(checks map[string]Checker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Healthz godoc
// GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]bool, len(h.checks))
	for name, check := range h.checks {
		ok := check(ctx)
		results[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	response.Success(c, status, gin.H{"status": state, "checks": results})
}
