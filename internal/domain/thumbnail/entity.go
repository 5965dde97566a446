package thumbnail

import "time"

// Job states. A job is terminal once ready or failed; re-generation always
// means a fresh enqueue, never reopening an old row.
const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateReady      = "ready"
	StateFailed     = "failed"
)

// FormatPNG is the only preview format produced today.
const FormatPNG = "png"

// Job is one unit of deferred preview work for a specific model version. At
// most one pending or processing job exists per (model, version) target; the
// partial unique index created in database.Migrate backs this across process
// instances.
type Job struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ModelID       int64      `gorm:"column:model_id;index:idx_job_target" json:"model_id"`
	VersionID     int64      `gorm:"column:version_id;index:idx_job_target" json:"version_id"`
	Fingerprint   string     `gorm:"column:fingerprint;size:64" json:"fingerprint"`
	FrameCount    int        `gorm:"column:frame_count" json:"frame_count"`
	VerticalAngle float64    `gorm:"column:vertical_angle" json:"vertical_angle"`
	State         string     `gorm:"column:state;index" json:"state"`
	ErrorMessage  string     `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ClaimedAt     *time.Time `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Job) TableName() string { return "thumbnail_jobs" }

// Terminal reports whether no further state transition can happen without a
// new enqueue.
func (j *Job) Terminal() bool {
	return j.State == StateReady || j.State == StateFailed
}

// Thumbnail is the durable, queryable preview record clients consume. It
// mirrors the outcome of the latest job for its model and is the source of
// truth for status: push notifications are only a latency optimization.
type Thumbnail struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ModelID      int64     `gorm:"column:model_id;uniqueIndex:idx_thumb_model_format" json:"model_id"`
	VersionID    int64     `gorm:"column:version_id;index" json:"version_id"`
	Format       string    `gorm:"column:format;size:16;uniqueIndex:idx_thumb_model_format" json:"format"`
	Status       string    `gorm:"column:status" json:"status"`
	Path         string    `gorm:"column:path" json:"path"`
	ErrorMessage string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Thumbnail) TableName() string { return "thumbnails" }
