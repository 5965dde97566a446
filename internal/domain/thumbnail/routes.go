package thumbnail

import "github.com/gin-gonic/gin"

// RegisterRoutes registers thumbnail status routes under the models group.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	r.GET("/models/:id/thumbnail", h.GetStatus)
	r.GET("/models/:id/thumbnail/file", h.GetFile)
}

// RegisterInternalRoutes registers worker-facing maintenance routes. The
// caller wraps the group with the shared-secret middleware.
func RegisterInternalRoutes(r *gin.RouterGroup, h *Handler) {
	r.POST("/jobs/requeue-stuck", h.RequeueStuck)
}
