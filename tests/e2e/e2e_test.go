package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"modelibr/internal/database"
	"modelibr/internal/domain/batch"
	"modelibr/internal/domain/file"
	"modelibr/internal/domain/model"
	"modelibr/internal/domain/notify"
	"modelibr/internal/domain/thumbnail"
	"modelibr/internal/middleware"
)

type testSuite struct {
	router  *gin.Engine
	db      *gorm.DB
	cleanup func()
}

func renderedPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func setupSuite(t *testing.T) *testSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	suite := &testSuite{}

	renderSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(renderedPNG(t))
	}))

	dsn := fmt.Sprintf("file:e2e_%s?mode=memory&cache=shared", t.Name())
	db, err := database.Connect(dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	storageRoot := t.TempDir()
	store, err := file.NewStore(storageRoot)
	require.NoError(t, err)
	fileService := file.NewService(file.NewRepository(db), store, 0)

	queue := thumbnail.NewQueue(db, 5*time.Minute, 50*time.Millisecond)
	requester := thumbnail.NewRequester(queue, 1, 30)
	thumbRepo := thumbnail.NewRepository(db)
	previews, err := thumbnail.NewPreviewWriter(storageRoot, 64)
	require.NoError(t, err)
	renderer := thumbnail.NewHTTPRenderer(renderSrv.URL, 10*time.Second)

	manager := model.NewManager(db, fileService, requester)
	ledger := batch.NewLedger(db)
	hub := notify.NewHub()

	pool := thumbnail.NewPool(queue, thumbRepo, renderer, previews, fileService, manager, hub, 1)
	ctx, cancel := context.WithCancel(context.Background())
	wait := pool.Start(ctx)

	r := gin.New()
	r.Use(middleware.ErrorLogger())
	thumbHandler := thumbnail.NewHandler(thumbRepo, previews, queue)
	v1 := r.Group("/api/v1")
	{
		file.RegisterRoutes(v1, file.NewHandler(fileService))
		model.RegisterRoutes(v1, model.NewHandler(fileService, manager, ledger))
		thumbnail.RegisterRoutes(v1, thumbHandler)
		batch.RegisterRoutes(v1, batch.NewHandler(ledger))

		internal := v1.Group("/internal")
		internal.Use(middleware.WorkerSecretAuth("sweep-secret"))
		{
			thumbnail.RegisterInternalRoutes(internal, thumbHandler)
		}
	}

	suite.router = r
	suite.db = db
	suite.cleanup = func() {
		cancel()
		wait()
		renderSrv.Close()
	}
	t.Cleanup(suite.cleanup)
	return suite
}

func (s *testSuite) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testSuite) uploadModel(t *testing.T, name string, content []byte) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := s.do(t, http.MethodPost, "/api/v1/models", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, "upload failed: %s", w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
	return resp
}

func (s *testSuite) uploadVersion(t *testing.T, modelID int64, content []byte, setActive bool) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "update.glb")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	url := fmt.Sprintf("/api/v1/models/%d/versions?setActive=%t", modelID, setActive)
	w := s.do(t, http.MethodPost, url, &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, "version upload failed: %s", w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func fileID(t *testing.T, resp map[string]interface{}) int64 {
	t.Helper()
	f, ok := resp["file"].(map[string]interface{})
	require.True(t, ok, "response has no file object: %+v", resp)
	return int64(f["id"].(float64))
}

func modelID(t *testing.T, resp map[string]interface{}) int64 {
	t.Helper()
	m, ok := resp["model"].(map[string]interface{})
	require.True(t, ok, "response has no model object: %+v", resp)
	return int64(m["id"].(float64))
}

func (s *testSuite) waitForThumbnail(t *testing.T, modelID int64, wantStatus string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		w := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/models/%d/thumbnail", modelID), nil, "")
		if w.Code == http.StatusOK {
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			data := resp["data"].(map[string]interface{})
			if data["status"] == wantStatus {
				return data
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("thumbnail for model %d never reached status %q", modelID, wantStatus)
	return nil
}

func TestUploadRendersThumbnail(t *testing.T) {
	s := setupSuite(t)

	resp := s.uploadModel(t, "crate.glb", []byte("crate geometry"))
	id := modelID(t, resp)

	data := s.waitForThumbnail(t, id, "ready")
	assert.NotEmpty(t, data["path"])

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/models/%d/thumbnail/file", id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err, "served preview must be a valid PNG")
}

func TestDuplicateContentSharesOneFile(t *testing.T) {
	s := setupSuite(t)
	content := []byte("identical mesh bytes")

	first := s.uploadModel(t, "a.glb", content)
	second := s.uploadModel(t, "b.glb", content)

	assert.Equal(t, fileID(t, first), fileID(t, second), "identical bytes must map to one stored file")
	assert.NotEqual(t, modelID(t, first), modelID(t, second), "each upload still gets its own model")

	// Different content gets a different file.
	third := s.uploadModel(t, "c.glb", []byte("different mesh bytes"))
	assert.NotEqual(t, fileID(t, first), fileID(t, third))
}

func TestVersionLifecycle(t *testing.T) {
	s := setupSuite(t)

	resp := s.uploadModel(t, "crate.glb", []byte("crate v1"))
	id := modelID(t, resp)

	vresp := s.uploadVersion(t, id, []byte("crate v2"), true)
	v2 := vresp["version"].(map[string]interface{})
	assert.Equal(t, float64(2), v2["version_number"])
	assert.Equal(t, true, v2["is_active"])

	// The full version list shows exactly one active version.
	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/models/%d/versions", id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	versions := list["versions"].([]interface{})
	require.Len(t, versions, 2)
	activeCount := 0
	for _, v := range versions {
		if v.(map[string]interface{})["is_active"] == true {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)

	// Reactivate version 1.
	v1ID := int64(versions[0].(map[string]interface{})["id"].(float64))
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/models/%d/versions/%d/activate", id, v1ID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	// Soft-delete version 2: version 1 stays active, the list shrinks.
	v2ID := int64(v2["id"].(float64))
	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/models/%d/versions/%d", id, v2ID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/models/%d/versions", id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list["versions"].([]interface{}), 1)

	// A later upload never reuses the deleted version's number.
	vresp = s.uploadVersion(t, id, []byte("crate v3"), false)
	assert.Equal(t, float64(3), vresp["version"].(map[string]interface{})["version_number"])
}

func TestFileDownloadRoundTrip(t *testing.T) {
	s := setupSuite(t)
	content := []byte("mesh payload for download")

	resp := s.uploadModel(t, "crate.glb", content)
	id := fileID(t, resp)

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/files/%d", id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "crate.glb")
}

func TestBatchLedgerRecordsUploads(t *testing.T) {
	s := setupSuite(t)

	resp := s.uploadModel(t, "crate.glb", []byte("ledgered bytes"))
	batchID, ok := resp["batch_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, batchID)

	w := s.do(t, http.MethodGet, "/api/v1/batch-uploads?batch_id="+batchID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	entries := list["data"].([]interface{})
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]interface{})
	assert.Equal(t, "model", entry["upload_type"])
	assert.Equal(t, float64(fileID(t, resp)), entry["file_id"])
	assert.Equal(t, float64(modelID(t, resp)), entry["model_id"])
}

func TestTextureSetLifecycleOverHTTP(t *testing.T) {
	s := setupSuite(t)

	resp := s.uploadModel(t, "crate.glb", []byte("crate geometry"))
	mID := modelID(t, resp)

	// Create a set from an uploaded texture file.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "crate_albedo.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("albedo pixels"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("name", "crate textures"))
	require.NoError(t, mw.Close())

	w := s.do(t, http.MethodPost, "/api/v1/texture-sets/with-file", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, "texture set upload failed: %s", w.Body.String())
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	set := created["texture_set"].(map[string]interface{})
	setID := int64(set["id"].(float64))
	assert.Equal(t, "crate textures", set["name"])
	tex := created["texture"].(map[string]interface{})
	assert.Equal(t, "Albedo", tex["texture_type"])

	// Slot a second file into the set on its green channel.
	roughResp := s.uploadModel(t, "rough-source.glb", []byte("roughness pixels"))
	body, err := json.Marshal(map[string]interface{}{
		"fileId":        fileID(t, roughResp),
		"textureType":   "Roughness",
		"sourceChannel": 2,
	})
	require.NoError(t, err)
	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/texture-sets/%d/textures", setID), bytes.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/texture-sets/%d", setID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var fetched map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	textures := fetched["texture_set"].(map[string]interface{})["textures"].([]interface{})
	assert.Len(t, textures, 2)

	// The created set is assignable as a version default.
	versions := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/models/%d/versions", mID), nil, "")
	require.Equal(t, http.StatusOK, versions.Code)
	var list map[string]interface{}
	require.NoError(t, json.Unmarshal(versions.Body.Bytes(), &list))
	vID := int64(list["versions"].([]interface{})[0].(map[string]interface{})["id"].(float64))

	body, err = json.Marshal(map[string]interface{}{"textureSetId": setID, "modelVersionId": vID})
	require.NoError(t, err)
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/models/%d/defaultTextureSet", mID), bytes.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestInternalRequeueRequiresSecret(t *testing.T) {
	s := setupSuite(t)

	w := s.do(t, http.MethodPost, "/api/v1/internal/jobs/requeue-stuck", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/requeue-stuck", nil)
	req.Header.Set("X-Worker-Secret", "wrong")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/requeue-stuck", nil)
	req.Header.Set("X-Worker-Secret", "sweep-secret")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
}
