package model

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"modelibr/internal/domain/file"
)

// CreateTextureSetWithFile creates a set seeded with one texture built from an
// already-ingested file. Set and first texture are committed together so no
// empty set is left behind when the texture row fails.
func (m *Manager) CreateTextureSetWithFile(ctx context.Context, name string, f *file.File, textureType string) (*TextureSet, *Texture, error) {
	set := &TextureSet{Name: name, CreatedAt: time.Now()}
	tex := &Texture{FileID: f.ID, TextureType: textureType, CreatedAt: time.Now()}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(set).Error; err != nil {
			return err
		}
		tex.TextureSetID = set.ID
		return tx.Create(tex).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return set, tex, nil
}

// AddTexture slots an existing cataloged file into a set.
func (m *Manager) AddTexture(ctx context.Context, textureSetID, fileID int64, textureType string, sourceChannel int) (*Texture, error) {
	tex := &Texture{
		TextureSetID:  textureSetID,
		FileID:        fileID,
		TextureType:   textureType,
		SourceChannel: sourceChannel,
		CreatedAt:     time.Now(),
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var set TextureSet
		if err := tx.First(&set, "id = ?", textureSetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTextureSetNotFound
			}
			return err
		}
		var f file.File
		if err := tx.First(&f, "id = ?", fileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return file.ErrFileNotFound
			}
			return err
		}
		return tx.Create(tex).Error
	})
	if err != nil {
		return nil, err
	}
	return tex, nil
}

// GetTextureSet returns a set with its textures and their file records.
func (m *Manager) GetTextureSet(ctx context.Context, textureSetID int64) (*TextureSet, error) {
	var set TextureSet
	err := m.db.WithContext(ctx).
		Preload("Textures", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Textures.File").
		First(&set, "id = ?", textureSetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTextureSetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}
