package batch

import "time"

// Upload types recorded by the ledger.
const (
	TypeModel   = "model"
	TypeTexture = "texture"
	TypeSprite  = "sprite"
	TypeSound   = "sound"
	TypePack    = "pack"
)

// BatchUpload is one append-only audit row: which ingested file arrived as
// part of which client-initiated multi-file batch. The only later mutation is
// attaching the entity the file was eventually assigned to.
type BatchUpload struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	BatchID      string    `gorm:"column:batch_id;size:36;index" json:"batch_id"`
	UploadType   string    `gorm:"column:upload_type;index" json:"upload_type"`
	FileID       int64     `gorm:"column:file_id;index" json:"file_id"`
	ModelID      *int64    `gorm:"column:model_id;index" json:"model_id,omitempty"`
	PackID       *int64    `gorm:"column:pack_id" json:"pack_id,omitempty"`
	TextureSetID *int64    `gorm:"column:texture_set_id" json:"texture_set_id,omitempty"`
	UploadedAt   time.Time `gorm:"column:uploaded_at;index" json:"uploaded_at"`
}

func (BatchUpload) TableName() string { return "batch_uploads" }
