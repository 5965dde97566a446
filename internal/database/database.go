package database

import (
	"log"
	"strings"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // registers the CGO-free "sqlite" database/sql driver

	"modelibr/internal/domain/batch"
	"modelibr/internal/domain/file"
	"modelibr/internal/domain/model"
	"modelibr/internal/domain/thumbnail"
)

func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{TranslateError: true}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		log.Println("Connecting to PostgreSQL...")
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	log.Println("Using SQLite for local development:", dsn)

	return gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		cfg,
	)
}

// Migrate creates the pipeline schema. The partial unique indexes back two
// invariants AutoMigrate cannot express, so they are created with raw SQL
// (identical syntax on PostgreSQL and SQLite): at most one in-flight
// thumbnail job per version, and at most one active version per model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&file.File{},
		&model.Model{},
		&model.ModelVersion{},
		&model.TextureSet{},
		&model.Texture{},
		&model.VersionTextureSet{},
		&thumbnail.Job{},
		&thumbnail.Thumbnail{},
		&batch.BatchUpload{},
	); err != nil {
		return err
	}

	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_thumbnail_jobs_inflight
		 ON thumbnail_jobs (model_id, version_id)
		 WHERE state IN ('pending', 'processing')`,
	).Error; err != nil {
		return err
	}

	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_model_versions_active
		 ON model_versions (model_id)
		 WHERE is_active`,
	).Error
}
