package notify

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the realtime status channel.
func RegisterRoutes(r *gin.RouterGroup, h *WSHandler) {
	r.GET("/ws/thumbnails", h.ServeWS)
}
