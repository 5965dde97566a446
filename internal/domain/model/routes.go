package model

import "github.com/gin-gonic/gin"

// RegisterRoutes registers model, version and texture-set routes.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	textureSets := r.Group("/texture-sets")
	{
		textureSets.POST("/with-file", h.CreateTextureSetWithFile)
		textureSets.GET("/:id", h.GetTextureSet)
		textureSets.POST("/:id/textures", h.AddTexture)
	}

	models := r.Group("/models")
	{
		models.POST("", h.Upload)
		models.GET("", h.List)
		models.GET("/:id", h.Get)
		models.PUT("/:id/geometry", h.SetGeometry)
		models.PUT("/:id/defaultTextureSet", h.SetDefaultTextureSet)

		models.POST("/:id/versions", h.UploadVersion)
		models.GET("/:id/versions", h.ListVersions)
		models.GET("/:id/versions/:versionId", h.GetVersion)
		models.PUT("/:id/versions/:versionId/activate", h.Activate)
		models.DELETE("/:id/versions/:versionId", h.DeleteVersion)

		models.POST("/:id/versions/:versionId/texture-sets/:textureSetId", h.AssociateTextureSet)
		models.DELETE("/:id/versions/:versionId/texture-sets/:textureSetId", h.DisassociateTextureSet)
	}
}
