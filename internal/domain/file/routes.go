package file

import "github.com/gin-gonic/gin"

// RegisterRoutes registers file download routes.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	files := r.Group("/files")
	{
		files.GET("/:id", h.Download)
		files.GET("/:id/meta", h.GetMeta)
	}
}
