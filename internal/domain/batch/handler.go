package batch

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler serves read-only batch upload history.
type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// List godoc
// @Summary Query batch upload history
// @Description Filter by batch_id, upload_type, file_id, model_id or a from/to date range (RFC 3339).
// @Tags BatchUploads
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /batch-uploads [get]
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()

	if batchID := c.Query("batch_id"); batchID != "" {
		entries, err := h.ledger.ByBatchID(ctx, batchID)
		respond(c, entries, err)
		return
	}
	if uploadType := c.Query("upload_type"); uploadType != "" {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		entries, err := h.ledger.ByType(ctx, uploadType, limit)
		respond(c, entries, err)
		return
	}
	if fileID, err := strconv.ParseInt(c.Query("file_id"), 10, 64); err == nil && fileID > 0 {
		entries, err := h.ledger.ByFileID(ctx, fileID)
		respond(c, entries, err)
		return
	}
	if modelID, err := strconv.ParseInt(c.Query("model_id"), 10, 64); err == nil && modelID > 0 {
		entries, err := h.ledger.ByModelID(ctx, modelID)
		respond(c, entries, err)
		return
	}
	if fromStr, toStr := c.Query("from"), c.Query("to"); fromStr != "" && toStr != "" {
		from, err1 := time.Parse(time.RFC3339, fromStr)
		to, err2 := time.Parse(time.RFC3339, toStr)
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "from/to must be RFC 3339 timestamps"})
			return
		}
		entries, err := h.ledger.ByDateRange(ctx, from, to)
		respond(c, entries, err)
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "provide batch_id, upload_type, file_id, model_id or a from/to range"})
}

func respond(c *gin.Context, entries []BatchUpload, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to query batch uploads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}
