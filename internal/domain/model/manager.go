package model

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"modelibr/internal/domain/file"
)

// ThumbnailRequester asks the thumbnail pipeline for a preview of a version.
// Enqueueing is idempotent on the pipeline side; failures here never fail the
// originating upload, they only leave the preview to a later re-request.
type ThumbnailRequester interface {
	RequestThumbnail(ctx context.Context, modelID, versionID int64, fingerprint string) error
}

// FileRemover deletes a cataloged file and its stored bytes. Implemented by
// the file service; used when a purged version was the last reference.
type FileRemover interface {
	Remove(ctx context.Context, fileID int64) error
}

// Manager owns the version list of every model: numbering, the single active
// version pointer, per-version texture-set defaults, and the explicit
// reference counting that replaces ORM cascade deletes.
type Manager struct {
	db         *gorm.DB
	files      FileRemover
	thumbnails ThumbnailRequester
}

func NewManager(db *gorm.DB, files FileRemover, thumbnails ThumbnailRequester) *Manager {
	return &Manager{db: db, files: files, thumbnails: thumbnails}
}

// CreateModel creates a model plus its first (always active) version and
// requests a preview for it.
func (m *Manager) CreateModel(ctx context.Context, name string, f *file.File, description string) (*Model, *ModelVersion, error) {
	now := time.Now()
	mdl := &Model{Name: name, CreatedAt: now, UpdatedAt: now}
	if err := m.db.WithContext(ctx).Create(mdl).Error; err != nil {
		return nil, nil, fmt.Errorf("create model: %w", err)
	}
	version, err := m.CreateVersion(ctx, mdl.ID, f, description, true)
	if err != nil {
		return nil, nil, err
	}
	return mdl, version, nil
}

// CreateVersion appends a new version to a model. The version number is
// max+1 over every row for the model, soft-deleted ones included, so numbers
// are never reused. The first version of a model is always activated; any
// activation flips the previous active flag off in the same transaction.
func (m *Manager) CreateVersion(ctx context.Context, modelID int64, f *file.File, description string, setActive bool) (*ModelVersion, error) {
	var version *ModelVersion

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var mdl Model
		if err := tx.First(&mdl, "id = ?", modelID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrModelNotFound
			}
			return err
		}

		var maxNumber int
		if err := tx.Model(&ModelVersion{}).
			Where("model_id = ?", modelID).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&maxNumber).Error; err != nil {
			return err
		}

		var activeCount int64
		if err := tx.Model(&ModelVersion{}).
			Where("model_id = ? AND is_active = ? AND deleted_at IS NULL", modelID, true).
			Count(&activeCount).Error; err != nil {
			return err
		}

		active := setActive || activeCount == 0
		if active && activeCount > 0 {
			if err := tx.Model(&ModelVersion{}).
				Where("model_id = ? AND is_active = ?", modelID, true).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}

		v := &ModelVersion{
			ModelID:       modelID,
			VersionNumber: maxNumber + 1,
			Description:   description,
			FileID:        f.ID,
			IsActive:      active,
			CreatedAt:     time.Now(),
		}
		if err := tx.Create(v).Error; err != nil {
			return err
		}
		if err := tx.Model(&Model{}).Where("id = ?", modelID).
			Update("updated_at", time.Now()).Error; err != nil {
			return err
		}

		version = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.requestThumbnail(ctx, modelID, version.ID, f.Fingerprint)
	return version, nil
}

// SetActiveVersion makes versionID the single active version of the model.
func (m *Manager) SetActiveVersion(ctx context.Context, modelID, versionID int64) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v ModelVersion
		err := tx.Where("id = ? AND model_id = ? AND deleted_at IS NULL", versionID, modelID).First(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVersionNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&ModelVersion{}).
			Where("model_id = ? AND is_active = ?", modelID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&ModelVersion{}).Where("id = ?", versionID).
			Update("is_active", true).Error
	})
}

// SetDefaultTextureSet assigns (or clears, with a nil id) the default texture
// set of one version. The assignment is version-scoped: other versions keep
// their own defaults and their existing thumbnails untouched. A fresh preview
// is requested for the affected version only, since textures change the
// rendered image.
func (m *Manager) SetDefaultTextureSet(ctx context.Context, modelID, versionID int64, textureSetID *int64) error {
	var fingerprint string

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v ModelVersion
		err := tx.Preload("File").
			Where("id = ? AND model_id = ? AND deleted_at IS NULL", versionID, modelID).
			First(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVersionNotFound
		}
		if err != nil {
			return err
		}

		if textureSetID != nil {
			var ts TextureSet
			if err := tx.First(&ts, "id = ?", *textureSetID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrTextureSetNotFound
				}
				return err
			}
		}

		if v.File != nil {
			fingerprint = v.File.Fingerprint
		}
		return tx.Model(&ModelVersion{}).Where("id = ?", versionID).
			Update("default_texture_set_id", textureSetID).Error
	})
	if err != nil {
		return err
	}

	if fingerprint != "" {
		m.requestThumbnail(ctx, modelID, versionID, fingerprint)
	}
	return nil
}

// AssociateTextureSet links a texture set to a version. Idempotent.
func (m *Manager) AssociateTextureSet(ctx context.Context, versionID, textureSetID int64) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v ModelVersion
		err := tx.Where("id = ? AND deleted_at IS NULL", versionID).First(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVersionNotFound
		}
		if err != nil {
			return err
		}
		var ts TextureSet
		if err := tx.First(&ts, "id = ?", textureSetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTextureSetNotFound
			}
			return err
		}
		link := VersionTextureSet{ModelVersionID: versionID, TextureSetID: textureSetID}
		return tx.Where(VersionTextureSet{ModelVersionID: versionID, TextureSetID: textureSetID}).
			Attrs(VersionTextureSet{CreatedAt: time.Now()}).
			FirstOrCreate(&link).Error
	})
}

// DisassociateTextureSet removes the link and clears the version's default if
// it pointed at the removed set.
func (m *Manager) DisassociateTextureSet(ctx context.Context, versionID, textureSetID int64) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("model_version_id = ? AND texture_set_id = ?", versionID, textureSetID).
			Delete(&VersionTextureSet{}).Error; err != nil {
			return err
		}
		return tx.Model(&ModelVersion{}).
			Where("id = ? AND default_texture_set_id = ?", versionID, textureSetID).
			Update("default_texture_set_id", nil).Error
	})
}

// SoftDeleteVersion marks a version deleted. If it was the active one, the
// newest remaining live version takes over so the model keeps exactly one
// active version as long as any live version exists.
func (m *Manager) SoftDeleteVersion(ctx context.Context, modelID, versionID int64) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v ModelVersion
		err := tx.Where("id = ? AND model_id = ? AND deleted_at IS NULL", versionID, modelID).First(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVersionNotFound
		}
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&ModelVersion{}).Where("id = ?", versionID).
			Updates(map[string]interface{}{"deleted_at": now, "is_active": false}).Error; err != nil {
			return err
		}

		if !v.IsActive {
			return nil
		}

		var successor ModelVersion
		err = tx.Where("model_id = ? AND deleted_at IS NULL", modelID).
			Order("version_number DESC").First(&successor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // no live versions left, nothing to activate
		}
		if err != nil {
			return err
		}
		return tx.Model(&ModelVersion{}).Where("id = ?", successor.ID).
			Update("is_active", true).Error
	})
}

// PurgeVersion permanently removes a version row. The backing file is deleted
// from catalog and storage only when no other version, of any model, still
// references it: explicit reference counting in place of ORM cascades.
func (m *Manager) PurgeVersion(ctx context.Context, modelID, versionID int64) error {
	var (
		fileID   int64
		refCount int64
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v ModelVersion
		err := tx.Where("id = ? AND model_id = ?", versionID, modelID).First(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVersionNotFound
		}
		if err != nil {
			return err
		}
		fileID = v.FileID

		if err := tx.Where("model_version_id = ?", versionID).Delete(&VersionTextureSet{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", versionID).Delete(&ModelVersion{}).Error; err != nil {
			return err
		}
		return tx.Model(&ModelVersion{}).Where("file_id = ?", fileID).Count(&refCount).Error
	})
	if err != nil {
		return err
	}

	if refCount == 0 {
		if err := m.files.Remove(ctx, fileID); err != nil {
			return fmt.Errorf("remove orphaned file %d: %w", fileID, err)
		}
	}
	return nil
}

// SetGeometry records computed vertex/face counts on the model.
func (m *Manager) SetGeometry(ctx context.Context, modelID int64, vertexCount, faceCount int64) error {
	res := m.db.WithContext(ctx).Model(&Model{}).Where("id = ?", modelID).
		Updates(map[string]interface{}{
			"vertex_count": vertexCount,
			"face_count":   faceCount,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrModelNotFound
	}
	return nil
}

// GetModel returns a model with its live versions, oldest first.
func (m *Manager) GetModel(ctx context.Context, modelID int64) (*Model, error) {
	var mdl Model
	err := m.db.WithContext(ctx).
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Where("deleted_at IS NULL").Order("version_number ASC")
		}).
		First(&mdl, "id = ?", modelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mdl, nil
}

// ListModels returns models, optionally filtered by a name substring.
func (m *Manager) ListModels(ctx context.Context, search string) ([]Model, error) {
	var models []Model
	q := m.db.WithContext(ctx).Order("created_at DESC")
	if search != "" {
		q = q.Where("name LIKE ?", "%"+search+"%")
	}
	err := q.Find(&models).Error
	return models, err
}

// ListVersions returns the live versions of a model, oldest first.
func (m *Manager) ListVersions(ctx context.Context, modelID int64) ([]ModelVersion, error) {
	var versions []ModelVersion
	err := m.db.WithContext(ctx).
		Where("model_id = ? AND deleted_at IS NULL", modelID).
		Order("version_number ASC").
		Find(&versions).Error
	return versions, err
}

// GetVersion returns one live version of a model.
func (m *Manager) GetVersion(ctx context.Context, modelID, versionID int64) (*ModelVersion, error) {
	var v ModelVersion
	err := m.db.WithContext(ctx).Preload("File").
		Where("id = ? AND model_id = ? AND deleted_at IS NULL", versionID, modelID).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ActiveVersion returns the model's current active version.
func (m *Manager) ActiveVersion(ctx context.Context, modelID int64) (*ModelVersion, error) {
	var v ModelVersion
	err := m.db.WithContext(ctx).
		Where("model_id = ? AND is_active = ? AND deleted_at IS NULL", modelID, true).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// VersionDeleted reports whether a version is soft-deleted or gone entirely.
// The thumbnail workers call this right before persisting a rendered preview.
func (m *Manager) VersionDeleted(ctx context.Context, versionID int64) (bool, error) {
	var v ModelVersion
	err := m.db.WithContext(ctx).Select("id", "deleted_at").First(&v, "id = ?", versionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return v.DeletedAt != nil, nil
}

func (m *Manager) requestThumbnail(ctx context.Context, modelID, versionID int64, fingerprint string) {
	if m.thumbnails == nil {
		return
	}
	if err := m.thumbnails.RequestThumbnail(ctx, modelID, versionID, fingerprint); err != nil {
		// The preview is a decoupled outcome; the version change stands.
		log.Printf("thumbnail request failed model=%d version=%d: %v", modelID, versionID, err)
	}
}
