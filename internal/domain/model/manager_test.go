package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"modelibr/internal/domain/file"
)

type requesterRecorder struct {
	calls []requestedThumbnail
	err   error
}

type requestedThumbnail struct {
	modelID     int64
	versionID   int64
	fingerprint string
}

func (r *requesterRecorder) RequestThumbnail(ctx context.Context, modelID, versionID int64, fingerprint string) error {
	r.calls = append(r.calls, requestedThumbnail{modelID, versionID, fingerprint})
	return r.err
}

type removerRecorder struct {
	removed []int64
}

func (r *removerRecorder) Remove(ctx context.Context, fileID int64) error {
	r.removed = append(r.removed, fileID)
	return nil
}

func setupManager(t *testing.T) (*Manager, *gorm.DB, *requesterRecorder, *removerRecorder) {
	t.Helper()
	dsn := fmt.Sprintf("file:model_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&file.File{}, &Model{}, &ModelVersion{}, &TextureSet{}, &Texture{}, &VersionTextureSet{}))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_model_versions_active
		 ON model_versions (model_id)
		 WHERE is_active`,
	).Error)

	requester := &requesterRecorder{}
	remover := &removerRecorder{}
	return NewManager(db, remover, requester), db, requester, remover
}

func newTestFile(t *testing.T, db *gorm.DB, fingerprint string) *file.File {
	t.Helper()
	f := &file.File{
		Fingerprint:  fingerprint,
		OriginalName: "asset.glb",
		StoredName:   fingerprint + ".glb",
		RelativePath: "models/" + fingerprint[:2] + "/" + fingerprint + ".glb",
		MimeType:     "application/octet-stream",
		Category:     "models",
		Size:         42,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, db.Create(f).Error)
	return f
}

func TestCreateModelActivatesFirstVersion(t *testing.T) {
	m, db, requester, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000001")

	mdl, v, err := m.CreateModel(ctx, "crate", f, "initial upload")
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)
	assert.True(t, v.IsActive)
	assert.Equal(t, mdl.ID, v.ModelID)

	require.Len(t, requester.calls, 1)
	assert.Equal(t, f.Fingerprint, requester.calls[0].fingerprint)
	assert.Equal(t, v.ID, requester.calls[0].versionID)
}

func TestCreateVersionNumbersAreMonotonic(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000002")

	mdl, _, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)

	v2, err := m.CreateVersion(ctx, mdl.ID, f, "second", false)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.False(t, v2.IsActive)

	v3, err := m.CreateVersion(ctx, mdl.ID, f, "third", false)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.VersionNumber)
}

func TestCreateVersionSetActiveFlipsPrevious(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000003")

	mdl, v1, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)

	v2, err := m.CreateVersion(ctx, mdl.ID, f, "", true)
	require.NoError(t, err)
	assert.True(t, v2.IsActive)

	var active []ModelVersion
	require.NoError(t, m.db.Where("model_id = ? AND is_active = ?", mdl.ID, true).Find(&active).Error)
	require.Len(t, active, 1)
	assert.Equal(t, v2.ID, active[0].ID)
	assert.NotEqual(t, v1.ID, active[0].ID)
}

func TestVersionNumbersNeverReusedAfterSoftDelete(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000004")

	mdl, _, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	v2, err := m.CreateVersion(ctx, mdl.ID, f, "", false)
	require.NoError(t, err)
	require.NoError(t, m.SoftDeleteVersion(ctx, mdl.ID, v2.ID))

	v3, err := m.CreateVersion(ctx, mdl.ID, f, "", false)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.VersionNumber, "number of the soft-deleted version must not come back")
}

func TestSoftDeleteActiveVersionPromotesNewestLive(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000005")

	mdl, _, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	v2, err := m.CreateVersion(ctx, mdl.ID, f, "", false)
	require.NoError(t, err)
	v3, err := m.CreateVersion(ctx, mdl.ID, f, "", true)
	require.NoError(t, err)

	require.NoError(t, m.SoftDeleteVersion(ctx, mdl.ID, v3.ID))

	active, err := m.ActiveVersion(ctx, mdl.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID, "newest remaining live version takes over")

	versions, err := m.ListVersions(ctx, mdl.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestSoftDeleteLastVersionLeavesNoActive(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000006")

	mdl, v1, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	require.NoError(t, m.SoftDeleteVersion(ctx, mdl.ID, v1.ID))

	_, err = m.ActiveVersion(ctx, mdl.ID)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestSetActiveVersion(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000007")

	mdl, v1, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	v2, err := m.CreateVersion(ctx, mdl.ID, f, "", false)
	require.NoError(t, err)

	require.NoError(t, m.SetActiveVersion(ctx, mdl.ID, v2.ID))
	active, err := m.ActiveVersion(ctx, mdl.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)

	require.NoError(t, m.SetActiveVersion(ctx, mdl.ID, v1.ID))
	active, err = m.ActiveVersion(ctx, mdl.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, active.ID)

	err = m.SetActiveVersion(ctx, mdl.ID, 99999)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestSetDefaultTextureSetIsVersionScoped(t *testing.T) {
	m, db, requester, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000008")

	mdl, v1, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	v2, err := m.CreateVersion(ctx, mdl.ID, f, "", false)
	require.NoError(t, err)

	ts := &TextureSet{Name: "weathered", CreatedAt: time.Now()}
	require.NoError(t, db.Create(ts).Error)

	requester.calls = nil
	require.NoError(t, m.SetDefaultTextureSet(ctx, mdl.ID, v2.ID, &ts.ID))

	got1, err := m.GetVersion(ctx, mdl.ID, v1.ID)
	require.NoError(t, err)
	assert.Nil(t, got1.DefaultTextureSetID, "other versions keep their own defaults")

	got2, err := m.GetVersion(ctx, mdl.ID, v2.ID)
	require.NoError(t, err)
	require.NotNil(t, got2.DefaultTextureSetID)
	assert.Equal(t, ts.ID, *got2.DefaultTextureSetID)

	// Only the affected version gets a fresh preview.
	require.Len(t, requester.calls, 1)
	assert.Equal(t, v2.ID, requester.calls[0].versionID)

	err = m.SetDefaultTextureSet(ctx, mdl.ID, v2.ID, ptr(int64(424242)))
	assert.ErrorIs(t, err, ErrTextureSetNotFound)
}

func TestClearDefaultTextureSet(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000009")

	mdl, v1, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	ts := &TextureSet{Name: "weathered", CreatedAt: time.Now()}
	require.NoError(t, db.Create(ts).Error)

	require.NoError(t, m.SetDefaultTextureSet(ctx, mdl.ID, v1.ID, &ts.ID))
	require.NoError(t, m.SetDefaultTextureSet(ctx, mdl.ID, v1.ID, nil))

	got, err := m.GetVersion(ctx, mdl.ID, v1.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DefaultTextureSetID)
}

func TestAssociateTextureSetIsIdempotent(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa1100000000000000000000000000000000000000000000000000000000000a")

	_, v1, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	ts := &TextureSet{Name: "weathered", CreatedAt: time.Now()}
	require.NoError(t, db.Create(ts).Error)

	require.NoError(t, m.AssociateTextureSet(ctx, v1.ID, ts.ID))
	require.NoError(t, m.AssociateTextureSet(ctx, v1.ID, ts.ID))

	var count int64
	require.NoError(t, db.Model(&VersionTextureSet{}).
		Where("model_version_id = ? AND texture_set_id = ?", v1.ID, ts.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDisassociateTextureSetClearsMatchingDefault(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa1100000000000000000000000000000000000000000000000000000000000b")

	mdl, v1, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	ts := &TextureSet{Name: "weathered", CreatedAt: time.Now()}
	require.NoError(t, db.Create(ts).Error)

	require.NoError(t, m.AssociateTextureSet(ctx, v1.ID, ts.ID))
	require.NoError(t, m.SetDefaultTextureSet(ctx, mdl.ID, v1.ID, &ts.ID))
	require.NoError(t, m.DisassociateTextureSet(ctx, v1.ID, ts.ID))

	got, err := m.GetVersion(ctx, mdl.ID, v1.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DefaultTextureSetID)
}

func TestPurgeVersionRemovesFileOnlyWhenUnreferenced(t *testing.T) {
	m, db, _, remover := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa1100000000000000000000000000000000000000000000000000000000000c")

	mdl, v1, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	v2, err := m.CreateVersion(ctx, mdl.ID, f, "", false)
	require.NoError(t, err)

	require.NoError(t, m.PurgeVersion(ctx, mdl.ID, v2.ID))
	assert.Empty(t, remover.removed, "file still referenced by another version")

	require.NoError(t, m.PurgeVersion(ctx, mdl.ID, v1.ID))
	require.Len(t, remover.removed, 1)
	assert.Equal(t, f.ID, remover.removed[0])

	err = m.PurgeVersion(ctx, mdl.ID, v1.ID)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestVersionDeleted(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa1100000000000000000000000000000000000000000000000000000000000d")

	mdl, v1, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)

	deleted, err := m.VersionDeleted(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, m.SoftDeleteVersion(ctx, mdl.ID, v1.ID))
	deleted, err = m.VersionDeleted(ctx, v1.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	// A row that never existed counts as deleted too.
	deleted, err = m.VersionDeleted(ctx, 99999)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestSetGeometry(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa1100000000000000000000000000000000000000000000000000000000000e")

	mdl, _, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)

	require.NoError(t, m.SetGeometry(ctx, mdl.ID, 1024, 2048))
	got, err := m.GetModel(ctx, mdl.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VertexCount)
	assert.Equal(t, int64(1024), *got.VertexCount)
	require.NotNil(t, got.FaceCount)
	assert.Equal(t, int64(2048), *got.FaceCount)

	err = m.SetGeometry(ctx, 99999, 1, 1)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestThumbnailRequestFailureDoesNotFailVersionCreation(t *testing.T) {
	m, db, requester, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa1100000000000000000000000000000000000000000000000000000000000f")

	requester.err = errors.New("queue unavailable")
	_, v, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)
	assert.True(t, v.IsActive)
}

func TestCreateTextureSetWithFileSeedsFirstTexture(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000010")

	set, tex, err := m.CreateTextureSetWithFile(ctx, "crate textures", f, "Albedo")
	require.NoError(t, err)
	assert.NotZero(t, set.ID)
	assert.Equal(t, set.ID, tex.TextureSetID)
	assert.Equal(t, f.ID, tex.FileID)
	assert.Equal(t, "Albedo", tex.TextureType)
	assert.Equal(t, 0, tex.SourceChannel)

	got, err := m.GetTextureSet(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, "crate textures", got.Name)
	require.Len(t, got.Textures, 1)
	require.NotNil(t, got.Textures[0].File)
	assert.Equal(t, f.Fingerprint, got.Textures[0].File.Fingerprint)
}

func TestAddTextureValidatesSetAndFile(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	albedo := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000011")
	rough := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000012")

	set, _, err := m.CreateTextureSetWithFile(ctx, "crate textures", albedo, "Albedo")
	require.NoError(t, err)

	tex, err := m.AddTexture(ctx, set.ID, rough.ID, "Roughness", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, tex.SourceChannel)

	got, err := m.GetTextureSet(ctx, set.ID)
	require.NoError(t, err)
	assert.Len(t, got.Textures, 2)

	_, err = m.AddTexture(ctx, 99999, rough.ID, "Normal", 0)
	assert.ErrorIs(t, err, ErrTextureSetNotFound)
	_, err = m.AddTexture(ctx, set.ID, 99999, "Normal", 0)
	assert.ErrorIs(t, err, file.ErrFileNotFound)
}

func TestCreatedTextureSetUsableAsVersionDefault(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	modelFile := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000013")
	texFile := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000014")

	mdl, v1, err := m.CreateModel(ctx, "crate", modelFile, "")
	require.NoError(t, err)
	set, _, err := m.CreateTextureSetWithFile(ctx, "crate textures", texFile, "Albedo")
	require.NoError(t, err)

	require.NoError(t, m.AssociateTextureSet(ctx, v1.ID, set.ID))
	require.NoError(t, m.SetDefaultTextureSet(ctx, mdl.ID, v1.ID, &set.ID))

	got, err := m.GetVersion(ctx, mdl.ID, v1.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DefaultTextureSetID)
	assert.Equal(t, set.ID, *got.DefaultTextureSetID)
}

func TestSecondActiveVersionRowRejectedBySchema(t *testing.T) {
	m, db, _, _ := setupManager(t)
	ctx := context.Background()
	f := newTestFile(t, db, "aa11000000000000000000000000000000000000000000000000000000000015")

	mdl, _, err := m.CreateModel(ctx, "crate", f, "")
	require.NoError(t, err)

	// A second active row written around the manager, as a racing
	// transaction would, hits the partial unique index.
	err = db.Create(&ModelVersion{
		ModelID:       mdl.ID,
		VersionNumber: 99,
		FileID:        f.ID,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}).Error
	require.Error(t, err)

	active, err := m.ActiveVersion(ctx, mdl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active.VersionNumber)
}

func ptr(v int64) *int64 { return &v }
