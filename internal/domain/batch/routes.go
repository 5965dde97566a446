package batch

import "github.com/gin-gonic/gin"

// RegisterRoutes registers batch upload history routes.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	r.GET("/batch-uploads", h.List)
}
