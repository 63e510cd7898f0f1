package api

import (
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"

	"camviewer/config"
	"camviewer/database"
	"camviewer/models"
	"camviewer/services"
)

// Server wires the HTTP routes to the playback and export services. One clip
// is open at a time; opening another releases the previous footage.
type Server struct {
	Cfg      *config.Config
	Footage  *services.FootageService
	Exporter *services.ExporterService

	mu      sync.Mutex
	clip    *models.Clip
	footage *models.Footage
	session *services.PlaybackSession
}

func SetupRoutes(r *gin.Engine, s *Server) {
	api := r.Group("/api")
	{
		api.GET("/clips", s.getClips)
		api.GET("/clips/:id", s.getClipDetails)
		api.POST("/clips/:id/open", s.openClip)
		api.GET("/clips/:id/event-seconds", s.getEventSeconds)

		api.GET("/video/:token", s.serveVideo)
		api.GET("/thumbnail/*path", s.getThumbnail)

		api.POST("/playback/state", s.updatePlayerState)
		api.POST("/playback/seek", s.seek)
		api.POST("/playback/replay", s.replay)
		api.POST("/playback/close", s.closeClip)

		api.POST("/export", s.createExportJob)
		api.GET("/export/:jobID", s.getExportStatus)
		api.POST("/export/:jobID/cancel", s.cancelExportJob)
		api.GET("/downloads/:filename", s.downloadExport)

		api.POST("/screenshot", s.createScreenshot)
	}
}

func (s *Server) getClips(c *gin.Context) {
	var clips []models.Clip
	if err := database.DB.Order("timestamp desc").Limit(100).Find(&clips).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, clips)
}

func (s *Server) getClipDetails(c *gin.Context) {
	clip, ok := s.loadClip(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, clip)
}

// openClip resolves the clip into playable footage. The previous footage's
// handles are revoked as part of establishing the new one.
func (s *Server) openClip(c *gin.Context) {
	clip, ok := s.loadClip(c)
	if !ok {
		return
	}

	footage, err := s.Footage.OpenClip(clip)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.clip = clip
	s.footage = footage
	s.session = services.NewPlaybackSession(footage)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"clip":          clip,
		"footage":       footage,
		"event_seconds": services.CalcEventSeconds(clip, footage),
	})
}

func (s *Server) closeClip(c *gin.Context) {
	s.mu.Lock()
	s.clip = nil
	s.footage = nil
	s.session = nil
	s.mu.Unlock()
	s.Footage.Release()
	c.Status(http.StatusNoContent)
}

func (s *Server) getEventSeconds(c *gin.Context) {
	clip, ok := s.loadClip(c)
	if !ok {
		return
	}
	s.mu.Lock()
	footage := s.footage
	s.mu.Unlock()
	if footage == nil || footage.ClipID != clip.ID {
		c.JSON(http.StatusConflict, gin.H{"error": "Clip is not open"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_seconds": services.CalcEventSeconds(clip, footage)})
}

func (s *Server) serveVideo(c *gin.Context) {
	token := c.Param("token")
	path, ok := s.Footage.ResolveHandle(token)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown or revoked handle"})
		return
	}
	c.File(path)
}

type playerStateRequest struct {
	Camera      string  `json:"camera" binding:"required"`
	Index       int     `json:"index"`
	CurrentTime float64 `json:"current_time"`
	Ended       bool    `json:"ended"`
}

func (s *Server) updatePlayerState(c *gin.Context) {
	var req playerStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, ok := s.activeSession(c)
	if !ok {
		return
	}
	snapshot := session.UpdateState(req.Camera, models.PlayerState{
		Index:       req.Index,
		CurrentTime: req.CurrentTime,
		Ended:       req.Ended,
	})
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) seek(c *gin.Context) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, ok := s.activeSession(c)
	if !ok {
		return
	}
	info := session.Seek(req.Seconds)
	if info == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Footage has no segments"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) replay(c *gin.Context) {
	session, ok := s.activeSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Replay())
}

func (s *Server) createExportJob(c *gin.Context) {
	var req services.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	clip, footage, ok := s.activeFootage(c)
	if !ok {
		return
	}
	if req.ClipID != clip.ID {
		c.JSON(http.StatusConflict, gin.H{"error": "Clip is not open"})
		return
	}

	jobID, err := s.Exporter.QueueExport(req, clip, footage)
	if err != nil {
		switch err {
		case services.ErrExportBusy:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case services.ErrNothingToExport:
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": services.StatusPending})
}

func (s *Server) getExportStatus(c *gin.Context) {
	status, exists := s.Exporter.GetStatus(c.Param("jobID"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) cancelExportJob(c *gin.Context) {
	if !s.Exporter.Cancel(c.Param("jobID")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) downloadExport(c *gin.Context) {
	filename := c.Param("filename")
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
		return
	}
	c.File(filepath.Join(s.Cfg.ExportDir(), filename))
}

func (s *Server) createScreenshot(c *gin.Context) {
	var req struct {
		View      string  `json:"view" binding:"required"`
		AtSeconds float64 `json:"at_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	clip, footage, ok := s.activeFootage(c)
	if !ok {
		return
	}
	path, err := s.Exporter.Screenshot(clip, footage, req.View, req.AtSeconds)
	if err != nil {
		if err == services.ErrExportBusy {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_path": path})
}

func (s *Server) loadClip(c *gin.Context) (*models.Clip, bool) {
	var clip models.Clip
	if err := database.DB.Preload("Segments", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp asc")
	}).First(&clip, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Clip not found"})
		return nil, false
	}
	return &clip, true
}

func (s *Server) activeSession(c *gin.Context) (*services.PlaybackSession, bool) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No clip is open"})
		return nil, false
	}
	return session, true
}

func (s *Server) activeFootage(c *gin.Context) (*models.Clip, *models.Footage, bool) {
	s.mu.Lock()
	clip, footage := s.clip, s.footage
	s.mu.Unlock()
	if clip == nil || footage == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No clip is open"})
		return nil, nil, false
	}
	return clip, footage, true
}
