package handlers

import (
	"github.com/featureops/fsmon-backend-go/internal/websocket"
	"github.com/featureops/fsmon-backend-go/pkg/utils"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades the connection and hands it to the hub
func (h *Handlers) WebSocketHandler(hub *websocket.Hub) gin.HandlerFunc {
	return websocket.HandleWebSocketGin(hub)
}

// GetWebSocketStats returns hub statistics
func (h *Handlers) GetWebSocketStats(hub *websocket.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.SendSuccess(c, hub.GetStats())
	}
}
