package batch

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrEntryNotFound = errors.New("batch upload entry not found")

// Ledger records which ingested files belong to which upload batch. Rows are
// append-only; assignment updates touch existing rows, never add new ones.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends one entry for an ingested file.
func (l *Ledger) Record(ctx context.Context, batchID, uploadType string, fileID int64) (*BatchUpload, error) {
	entry := &BatchUpload{
		BatchID:    batchID,
		UploadType: uploadType,
		FileID:     fileID,
		UploadedAt: time.Now(),
	}
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// AssignModel attaches the model the file ended up belonging to.
func (l *Ledger) AssignModel(ctx context.Context, entryID, modelID int64) error {
	return l.assign(ctx, entryID, "model_id", modelID)
}

// AssignPack attaches the pack the file ended up belonging to.
func (l *Ledger) AssignPack(ctx context.Context, entryID, packID int64) error {
	return l.assign(ctx, entryID, "pack_id", packID)
}

// AssignTextureSet attaches the texture set the file ended up belonging to.
func (l *Ledger) AssignTextureSet(ctx context.Context, entryID, textureSetID int64) error {
	return l.assign(ctx, entryID, "texture_set_id", textureSetID)
}

func (l *Ledger) assign(ctx context.Context, entryID int64, column string, value int64) error {
	res := l.db.WithContext(ctx).Model(&BatchUpload{}).
		Where("id = ?", entryID).
		Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ByBatchID returns every entry of one batch, oldest first.
func (l *Ledger) ByBatchID(ctx context.Context, batchID string) ([]BatchUpload, error) {
	var entries []BatchUpload
	err := l.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("uploaded_at ASC").
		Find(&entries).Error
	return entries, err
}

// ByType returns entries of one upload type, newest first.
func (l *Ledger) ByType(ctx context.Context, uploadType string, limit int) ([]BatchUpload, error) {
	var entries []BatchUpload
	q := l.db.WithContext(ctx).
		Where("upload_type = ?", uploadType).
		Order("uploaded_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}

// ByDateRange returns entries uploaded within [from, to), newest first.
func (l *Ledger) ByDateRange(ctx context.Context, from, to time.Time) ([]BatchUpload, error) {
	var entries []BatchUpload
	err := l.db.WithContext(ctx).
		Where("uploaded_at >= ? AND uploaded_at < ?", from, to).
		Order("uploaded_at DESC").
		Find(&entries).Error
	return entries, err
}

// ByFileID returns every batch entry that ingested a given file.
func (l *Ledger) ByFileID(ctx context.Context, fileID int64) ([]BatchUpload, error) {
	var entries []BatchUpload
	err := l.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("uploaded_at DESC").
		Find(&entries).Error
	return entries, err
}

// ByModelID returns every entry later assigned to a model.
func (l *Ledger) ByModelID(ctx context.Context, modelID int64) ([]BatchUpload, error) {
	var entries []BatchUpload
	err := l.db.WithContext(ctx).
		Where("model_id = ?", modelID).
		Order("uploaded_at DESC").
		Find(&entries).Error
	return entries, err
}
