package handlers

import (
	"time"

	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	"github.com/featureops/fsmon-backend-go/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Health returns the health status of the service
func (h *Handlers) Health(c *gin.Context) {
	now := time.Now().UTC()
	components := gin.H{}
	status := "healthy"

	// Cheap probe to confirm the store answers.
	if _, err := h.metrics.Count(c.Request.Context(), repositories.MetricFilter{
		Start: now.Add(-time.Minute),
		End:   now,
	}); err != nil {
		components["database"] = "degraded"
		status = "degraded"
	} else {
		components["database"] = "up"
	}

	if h.wsHub != nil {
		components["websocket"] = "up"
	}

	health := gin.H{
		"status":     status,
		"timestamp":  now.Format(time.RFC3339),
		"service":    "fsmon-backend",
		"version":    "1.0.0",
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"components": components,
	}

	if h.wsHub != nil {
		health["websocket_clients"] = h.wsHub.GetClientCount()
	}

	utils.SendSuccess(c, health)
}
