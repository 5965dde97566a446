package file

import "time"

// File is the durable record of one distinct content fingerprint. Exactly one
// row exists per fingerprint no matter how many models reference the content
// or how many times it was uploaded.
type File struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Fingerprint  string    `gorm:"column:fingerprint;size:64;uniqueIndex" json:"fingerprint"`
	OriginalName string    `gorm:"column:original_name" json:"original_name"`
	StoredName   string    `gorm:"column:stored_name" json:"stored_name"`
	RelativePath string    `gorm:"column:relative_path" json:"-"` // relative to the storage root
	MimeType     string    `gorm:"column:mime_type" json:"mime_type"`
	Category     string    `gorm:"column:category" json:"category"` // declared file-type category
	Size         int64     `gorm:"column:size" json:"size"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (File) TableName() string { return "files" }
