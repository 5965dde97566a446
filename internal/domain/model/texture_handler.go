package model

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"modelibr/internal/domain/batch"
	"modelibr/internal/domain/file"
)

// DefaultTextureType is assumed for seeded textures when the upload does not
// name one.
const DefaultTextureType = "Albedo"

// CreateTextureSetWithFile godoc
// @Summary Upload a texture file and create a texture set seeded with it
// @Tags TextureSets
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Texture file"
// @Param name formData string false "Set name (defaults to the file name)"
// @Param textureType formData string false "Texture type of the seeded texture (defaults to Albedo)"
// @Param batch_id formData string false "Upload batch id (generated when absent)"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /texture-sets/with-file [post]
func (h *Handler) CreateTextureSetWithFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "file is required"})
		return
	}

	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to read upload"})
		return
	}
	defer src.Close()

	f, err := h.files.Ingest(c.Request.Context(), src, fh.Filename, batch.TypeTexture)
	if err != nil {
		ingestError(c, err)
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = fh.Filename
	}
	textureType := strings.TrimSpace(c.PostForm("textureType"))
	if textureType == "" {
		textureType = DefaultTextureType
	}

	set, tex, err := h.manager.CreateTextureSetWithFile(c.Request.Context(), name, f, textureType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to create texture set"})
		return
	}

	entry := h.recordTextureUpload(c, f.ID, set.ID)

	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"texture_set": set,
		"texture":     tex,
		"file":        f,
		"batch_id":    entry,
	})
}

type addTextureRequest struct {
	FileID        int64  `json:"fileId" binding:"required"`
	TextureType   string `json:"textureType" binding:"required"`
	SourceChannel int    `json:"sourceChannel" binding:"min=0,max=4"`
}

// AddTexture godoc
// @Summary Slot an already-ingested file into a texture set
// @Tags TextureSets
// @Accept json
// @Produce json
// @Param id path int true "Texture set ID"
// @Param request body addTextureRequest true "File, texture type and source channel (0=RGB, 1=R, 2=G, 3=B, 4=A)"
// @Success 201 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /texture-sets/{id}/textures [post]
func (h *Handler) AddTexture(c *gin.Context) {
	setID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req addTextureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "fileId and textureType are required, sourceChannel must be 0-4"})
		return
	}

	tex, err := h.manager.AddTexture(c.Request.Context(), setID, req.FileID, req.TextureType, req.SourceChannel)
	if err != nil {
		if errors.Is(err, file.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "file not found"})
			return
		}
		managerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "texture": tex})
}

// GetTextureSet godoc
// @Summary Get a texture set with its textures
// @Tags TextureSets
// @Produce json
// @Param id path int true "Texture set ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /texture-sets/{id} [get]
func (h *Handler) GetTextureSet(c *gin.Context) {
	setID, ok := pathID(c, "id")
	if !ok {
		return
	}
	set, err := h.manager.GetTextureSet(c.Request.Context(), setID)
	if err != nil {
		managerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "texture_set": set})
}

// recordTextureUpload mirrors recordUpload for texture ingests.
func (h *Handler) recordTextureUpload(c *gin.Context, fileID, textureSetID int64) string {
	if h.ledger == nil {
		return ""
	}
	batchID := strings.TrimSpace(c.PostForm("batch_id"))
	if batchID == "" {
		batchID = uuid.NewString()
	}
	entry, err := h.ledger.Record(c.Request.Context(), batchID, batch.TypeTexture, fileID)
	if err != nil {
		log.Printf("batch ledger record failed file=%d: %v", fileID, err)
		return ""
	}
	if err := h.ledger.AssignTextureSet(c.Request.Context(), entry.ID, textureSetID); err != nil {
		log.Printf("batch ledger assign failed entry=%d texture_set=%d: %v", entry.ID, textureSetID, err)
	}
	return batchID
}
