package model

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"modelibr/internal/domain/batch"
	"modelibr/internal/domain/file"
)

// Handler exposes the model catalog over HTTP. Uploads run the whole
// pipeline front half: ingest the bytes, attach them to a model version,
// record the batch ledger entry. The preview renders asynchronously.
type Handler struct {
	files   *file.Service
	manager *Manager
	ledger  *batch.Ledger
}

func NewHandler(files *file.Service, manager *Manager, ledger *batch.Ledger) *Handler {
	return &Handler{files: files, manager: manager, ledger: ledger}
}

// Upload godoc
// @Summary Upload a model file and create a model with its first version
// @Tags Models
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Model file"
// @Param name formData string false "Model name (defaults to the file name)"
// @Param description formData string false "Version description"
// @Param batch_id formData string false "Upload batch id (generated when absent)"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /models [post]
func (h *Handler) Upload(c *gin.Context) {
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

	f, err := h.files.Ingest(c.Request.Context(), src, fh.Filename, batch.TypeModel)
	if err != nil {
		ingestError(c, err)
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = fh.Filename
	}

	mdl, version, err := h.manager.CreateModel(c.Request.Context(), name, f, c.PostForm("description"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to create model"})
		return
	}

	entry := h.recordUpload(c, f.ID, mdl.ID)

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"model":    mdl,
		"version":  version,
		"file":     f,
		"batch_id": entry,
	})
}

// UploadVersion godoc
// @Summary Upload a file as a new version of an existing model
// @Tags Models
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Model ID"
// @Param setActive query bool false "Activate the new version"
// @Param file formData file true "Model file"
// @Success 201 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /models/{id}/versions [post]
func (h *Handler) UploadVersion(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}

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

	f, err := h.files.Ingest(c.Request.Context(), src, fh.Filename, batch.TypeModel)
	if err != nil {
		ingestError(c, err)
		return
	}

	setActive := c.Query("setActive") == "true"
	version, err := h.manager.CreateVersion(c.Request.Context(), modelID, f, c.PostForm("description"), setActive)
	if err != nil {
		managerError(c, err)
		return
	}

	entry := h.recordUpload(c, f.ID, modelID)

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"version":  version,
		"file":     f,
		"batch_id": entry,
	})
}

// List godoc
// @Summary List models
// @Tags Models
// @Produce json
// @Param search query string false "Name substring filter"
// @Success 200 {object} map[string]interface{}
// @Router /models [get]
func (h *Handler) List(c *gin.Context) {
	models, err := h.manager.ListModels(c.Request.Context(), c.Query("search"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list models"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "models": models, "count": len(models)})
}

// Get godoc
// @Summary Get a model with its live versions
// @Tags Models
// @Produce json
// @Param id path int true "Model ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /models/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	mdl, err := h.manager.GetModel(c.Request.Context(), modelID)
	if err != nil {
		managerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "model": mdl})
}

// ListVersions godoc
// @Summary List the live versions of a model
// @Tags Models
// @Produce json
// @Param id path int true "Model ID"
// @Success 200 {object} map[string]interface{}
// @Router /models/{id}/versions [get]
func (h *Handler) ListVersions(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	versions, err := h.manager.ListVersions(c.Request.Context(), modelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list versions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "versions": versions, "count": len(versions)})
}

// GetVersion godoc
// @Summary Get one live version of a model
// @Tags Models
// @Produce json
// @Param id path int true "Model ID"
// @Param versionId path int true "Version ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /models/{id}/versions/{versionId} [get]
func (h *Handler) GetVersion(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}
	version, err := h.manager.GetVersion(c.Request.Context(), modelID, versionID)
	if err != nil {
		managerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "version": version})
}

// Activate godoc
// @Summary Make a version the active one for its model
// @Tags Models
// @Produce json
// @Param id path int true "Model ID"
// @Param versionId path int true "Version ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /models/{id}/versions/{versionId}/activate [put]
func (h *Handler) Activate(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}
	if err := h.manager.SetActiveVersion(c.Request.Context(), modelID, versionID); err != nil {
		managerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type setDefaultTextureSetRequest struct {
	TextureSetID   *int64 `json:"textureSetId"`
	ModelVersionID int64  `json:"modelVersionId" binding:"required"`
}

// SetDefaultTextureSet godoc
// @Summary Set or clear the default texture set of one version
// @Tags Models
// @Accept json
// @Produce json
// @Param id path int true "Model ID"
// @Param request body setDefaultTextureSetRequest true "Target version and texture set (null clears)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /models/{id}/defaultTextureSet [put]
func (h *Handler) SetDefaultTextureSet(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setDefaultTextureSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "modelVersionId is required"})
		return
	}
	if err := h.manager.SetDefaultTextureSet(c.Request.Context(), modelID, req.ModelVersionID, req.TextureSetID); err != nil {
		managerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AssociateTextureSet godoc
// @Summary Link a texture set to a version
// @Tags Models
// @Produce json
// @Param id path int true "Model ID"
// @Param versionId path int true "Version ID"
// @Param textureSetId path int true "Texture set ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /models/{id}/versions/{versionId}/texture-sets/{textureSetId} [post]
func (h *Handler) AssociateTextureSet(c *gin.Context) {
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}
	textureSetID, ok := pathID(c, "textureSetId")
	if !ok {
		return
	}
	if err := h.manager.AssociateTextureSet(c.Request.Context(), versionID, textureSetID); err != nil {
		managerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DisassociateTextureSet godoc
// @Summary Unlink a texture set from a version
// @Tags Models
// @Produce json
// @Param id path int true "Model ID"
// @Param versionId path int true "Version ID"
// @Param textureSetId path int true "Texture set ID"
// @Success 200 {object} map[string]interface{}
// @Router /models/{id}/versions/{versionId}/texture-sets/{textureSetId} [delete]
func (h *Handler) DisassociateTextureSet(c *gin.Context) {
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}
	textureSetID, ok := pathID(c, "textureSetId")
	if !ok {
		return
	}
	if err := h.manager.DisassociateTextureSet(c.Request.Context(), versionID, textureSetID); err != nil {
		managerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteVersion godoc
// @Summary Soft-delete a version; ?purge=true removes it permanently
// @Tags Models
// @Produce json
// @Param id path int true "Model ID"
// @Param versionId path int true "Version ID"
// @Param purge query bool false "Hard delete and release the file if unreferenced"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /models/{id}/versions/{versionId} [delete]
func (h *Handler) DeleteVersion(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}

	var err error
	if c.Query("purge") == "true" {
		err = h.manager.PurgeVersion(c.Request.Context(), modelID, versionID)
	} else {
		err = h.manager.SoftDeleteVersion(c.Request.Context(), modelID, versionID)
	}
	if err != nil {
		managerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type setGeometryRequest struct {
	VertexCount int64 `json:"vertexCount" binding:"min=0"`
	FaceCount   int64 `json:"faceCount" binding:"min=0"`
}

// SetGeometry godoc
// @Summary Record computed vertex and face counts for a model
// @Tags Models
// @Accept json
// @Produce json
// @Param id path int true "Model ID"
// @Param request body setGeometryRequest true "Geometry counts"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /models/{id}/geometry [put]
func (h *Handler) SetGeometry(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setGeometryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid geometry payload"})
		return
	}
	if err := h.manager.SetGeometry(c.Request.Context(), modelID, req.VertexCount, req.FaceCount); err != nil {
		managerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// recordUpload writes the batch ledger entry for an ingested file. Ledger
// failures never fail the upload; the returned batch id is empty then.
func (h *Handler) recordUpload(c *gin.Context, fileID, modelID int64) string {
	if h.ledger == nil {
		return ""
	}
	batchID := strings.TrimSpace(c.PostForm("batch_id"))
	if batchID == "" {
		batchID = uuid.NewString()
	}
	entry, err := h.ledger.Record(c.Request.Context(), batchID, batch.TypeModel, fileID)
	if err != nil {
		log.Printf("batch ledger record failed file=%d: %v", fileID, err)
		return ""
	}
	if err := h.ledger.AssignModel(c.Request.Context(), entry.ID, modelID); err != nil {
		log.Printf("batch ledger assign failed entry=%d model=%d: %v", entry.ID, modelID, err)
	}
	return batchID
}

func ingestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, file.ErrEmptyFile):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "uploaded file is empty"})
	case errors.Is(err, file.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "uploaded file is too large"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to store file"})
	}
}

func managerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrModelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "model not found"})
	case errors.Is(err, ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "model version not found"})
	case errors.Is(err, ErrTextureSetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "texture set not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid " + name})
		return 0, false
	}
	return id, true
}
