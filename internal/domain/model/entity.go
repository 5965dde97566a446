package model

import (
	"time"

	"modelibr/internal/domain/file"
)

// Model is a logical asset. Its content lives in Files, wrapped by an ordered
// list of versions of which at most one is active at a time.
type Model struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name" json:"name"`
	VertexCount *int64    `gorm:"column:vertex_count" json:"vertex_count,omitempty"` // nullable until computed
	FaceCount   *int64    `gorm:"column:face_count" json:"face_count,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`

	Versions []ModelVersion `gorm:"foreignKey:ModelID" json:"versions,omitempty"`
}

func (Model) TableName() string { return "models" }

// ModelVersion wraps one File under a model. Version numbers are scoped per
// model, start at 1 and are never reused, soft-deleted rows included.
type ModelVersion struct {
	ID                  int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ModelID             int64      `gorm:"column:model_id;index" json:"model_id"`
	VersionNumber       int        `gorm:"column:version_number" json:"version_number"`
	Description         string     `gorm:"column:description" json:"description"`
	FileID              int64      `gorm:"column:file_id;index" json:"file_id"`
	DefaultTextureSetID *int64     `gorm:"column:default_texture_set_id" json:"default_texture_set_id,omitempty"`
	IsActive            bool       `gorm:"column:is_active" json:"is_active"`
	DeletedAt           *time.Time `gorm:"column:deleted_at;index" json:"deleted_at,omitempty"` // soft-delete marker
	CreatedAt           time.Time  `gorm:"column:created_at" json:"created_at"`

	File *file.File `gorm:"foreignKey:FileID" json:"file,omitempty"`
}

func (ModelVersion) TableName() string { return "model_versions" }

// TextureSet is a named group of texture files. Versions reference sets via
// VersionTextureSet links and an optional per-version default pointer.
type TextureSet struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`

	Textures []Texture `gorm:"foreignKey:TextureSetID" json:"textures,omitempty"`
}

func (TextureSet) TableName() string { return "texture_sets" }

// Texture slots one cataloged file into a set under a semantic type (Albedo,
// Normal, Roughness). SourceChannel narrows the file to a single channel:
// 0 full RGB, 1 red, 2 green, 3 blue, 4 alpha.
type Texture struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TextureSetID  int64     `gorm:"column:texture_set_id;index" json:"texture_set_id"`
	FileID        int64     `gorm:"column:file_id;index" json:"file_id"`
	TextureType   string    `gorm:"column:texture_type" json:"texture_type"`
	SourceChannel int       `gorm:"column:source_channel" json:"source_channel"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`

	File *file.File `gorm:"foreignKey:FileID" json:"file,omitempty"`
}

func (Texture) TableName() string { return "textures" }

// VersionTextureSet associates a texture set with a model version.
type VersionTextureSet struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ModelVersionID int64     `gorm:"column:model_version_id;uniqueIndex:idx_version_texture_set" json:"model_version_id"`
	TextureSetID   int64     `gorm:"column:texture_set_id;uniqueIndex:idx_version_texture_set" json:"texture_set_id"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
}

func (VersionTextureSet) TableName() string { return "version_texture_sets" }
