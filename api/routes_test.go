package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camviewer/config"
	"camviewer/database"
	"camviewer/models"
	"camviewer/services"
)

func setupTestServer(t *testing.T) (*gin.Engine, *Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.AutoMigrate(&models.Clip{}, &models.Segment{})
	database.DB = db

	// Segment files must exist on disk so the video route can serve them.
	dir := t.TempDir()
	front := filepath.Join(dir, "2024-01-01_10-00-00-front.mp4")
	require.NoError(t, os.WriteFile(front, []byte("mp4data"), 0644))

	ts, _ := models.ParseClipTime("2024-01-01_10-00-00")
	clip := models.Clip{Name: "2024-01-01_10-00-00", Timestamp: ts, Type: models.ClipTypeSaved}
	require.NoError(t, db.Create(&clip).Error)
	require.NoError(t, db.Create(&models.Segment{
		ClipID:    clip.ID,
		Name:      "2024-01-01_10-00-00",
		Timestamp: ts,
		FrontPath: front,
	}).Error)

	prober := func(path string) (*services.ProbeResult, error) {
		return &services.ProbeResult{Duration: 60, Width: 1280, Height: 960}, nil
	}

	cfg := config.DefaultConfig()
	cfg.ConfigPath = dir
	srv := &Server{
		Cfg:      cfg,
		Footage:  services.NewFootageService(prober, 2),
		Exporter: services.NewExporterService(&services.DirSaver{Dir: cfg.ExportDir()}, 30, "8M"),
	}

	r := gin.New()
	SetupRoutes(r, srv)
	return r, srv
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetClips(t *testing.T) {
	r, _ := setupTestServer(t)

	w := doJSON(t, r, http.MethodGet, "/api/clips", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var clips []models.Clip
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clips))
	require.Len(t, clips, 1)
	assert.Equal(t, "2024-01-01_10-00-00", clips[0].Name)
}

func TestPlaybackRequiresOpenClip(t *testing.T) {
	r, _ := setupTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/api/playback/seek", gin.H{"seconds": 10})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/export", services.ExportRequest{ClipID: 1, View: "grid"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOpenClipAndPlaybackFlow(t *testing.T) {
	r, _ := setupTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/api/clips/1/open", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var opened struct {
		Footage models.Footage `json:"footage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	require.Len(t, opened.Footage.Segments, 1)
	assert.Equal(t, float64(60), opened.Footage.Duration)

	// The handle serves the segment file.
	token := opened.Footage.Segments[0].Handles[models.CameraFront]
	require.NotEmpty(t, token)
	w = doJSON(t, r, http.MethodGet, "/api/video/"+token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp4data", w.Body.String())

	// Seek inside the open footage.
	w = doJSON(t, r, http.MethodPost, "/api/playback/seek", gin.H{"seconds": 30})
	require.Equal(t, http.StatusOK, w.Code)
	var info models.SeekInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 0, info.Index)
	assert.Equal(t, float64(30), info.Seconds)

	// Player state drives the synchronizer.
	w = doJSON(t, r, http.MethodPost, "/api/playback/state", gin.H{
		"camera": "front", "index": 0, "current_time": 42.0,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var snap services.PlaybackSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, float64(42), snap.PlayedSeconds)

	// Closing revokes the handle.
	w = doJSON(t, r, http.MethodPost, "/api/playback/close", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, r, http.MethodGet, "/api/video/"+token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportRejectsMismatchedClip(t *testing.T) {
	r, _ := setupTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/api/clips/1/open", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/export", services.ExportRequest{ClipID: 99, View: "grid"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDownloadRejectsTraversal(t *testing.T) {
	r, _ := setupTestServer(t)

	w := doJSON(t, r, http.MethodGet, "/api/downloads/evil..name.mp4", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClipNotFound(t *testing.T) {
	r, _ := setupTestServer(t)
	w := doJSON(t, r, http.MethodGet, "/api/clips/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
