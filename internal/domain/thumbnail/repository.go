package thumbnail

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists Thumbnail rows, the client-facing result records.
type Repository interface {
	Upsert(ctx context.Context, t *Thumbnail) error
	GetByModel(ctx context.Context, modelID int64, format string) (*Thumbnail, error)
	GetByVersion(ctx context.Context, versionID int64) (*Thumbnail, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Upsert inserts or refreshes the (model, format) row in one statement, so
// concurrent workers for different versions of one model cannot leave two
// rows behind.
func (r *repository) Upsert(ctx context.Context, t *Thumbnail) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "model_id"}, {Name: "format"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"version_id", "status", "path", "error_message", "updated_at",
		}),
	}).Create(t).Error
}

func (r *repository) GetByModel(ctx context.Context, modelID int64, format string) (*Thumbnail, error) {
	var t Thumbnail
	err := r.db.WithContext(ctx).
		Where("model_id = ? AND format = ?", modelID, format).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrThumbnailNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) GetByVersion(ctx context.Context, versionID int64) (*Thumbnail, error) {
	var t Thumbnail
	err := r.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("updated_at DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrThumbnailNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
