package thumbnail

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler serves thumbnail status queries. Reads only touch the Thumbnail
// row, never the job queue, so polling clients cannot block the pipeline.
type Handler struct {
	repo     Repository
	previews *PreviewWriter
	queue    *Queue
}

func NewHandler(repo Repository, previews *PreviewWriter, queue *Queue) *Handler {
	return &Handler{repo: repo, previews: previews, queue: queue}
}

// GetStatus godoc
// @Summary Get a model's thumbnail status
// @Tags Thumbnails
// @Produce json
// @Param id path int true "Model ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /models/{id}/thumbnail [get]
func (h *Handler) GetStatus(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	t, err := h.repo.GetByModel(c.Request.Context(), modelID, FormatPNG)
	if err != nil {
		if errors.Is(err, ErrThumbnailNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "thumbnail not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read thumbnail"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
		"model_id":   t.ModelID,
		"version_id": t.VersionID,
		"format":     t.Format,
		"status":     t.Status,
		"path":       t.Path,
		"error":      t.ErrorMessage,
		"updated_at": t.UpdatedAt,
	}})
}

// GetFile godoc
// @Summary Download a model's rendered preview
// @Tags Thumbnails
// @Produce image/png
// @Param id path int true "Model ID"
// @Success 200 {file} binary
// @Failure 404,409 {object} map[string]interface{}
// @Router /models/{id}/thumbnail/file [get]
func (h *Handler) GetFile(c *gin.Context) {
	modelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	t, err := h.repo.GetByModel(c.Request.Context(), modelID, FormatPNG)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "thumbnail not found"})
		return
	}
	if t.Status != StateReady {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "thumbnail is not ready", "status": t.Status})
		return
	}

	c.Header("Content-Type", "image/png")
	c.File(h.previews.Abs(t.Path))
}

// RequeueStuck godoc
// @Summary Requeue processing jobs older than the stuck timeout
// @Tags Internal
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /internal/jobs/requeue-stuck [post]
func (h *Handler) RequeueStuck(c *gin.Context) {
	n, err := h.queue.RequeueStuck(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "requeue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"requeued": n}})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid id"})
		return 0, false
	}
	return id, true
}
