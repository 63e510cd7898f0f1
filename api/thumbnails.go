package api

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// getThumbnail renders one frame of a segment file as a cached JPEG. The
// clip's ThumbPath is what the sidebar requests here; rendering happens on
// demand, the catalog only stores the reference.
func (s *Server) getThumbnail(c *gin.Context) {
	videoPath := c.Param("path")
	seekTime := c.DefaultQuery("time", "0.1")
	widthStr := c.DefaultQuery("w", "480")

	if _, err := strconv.ParseFloat(seekTime, 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time parameter"})
		return
	}
	width, err := strconv.Atoi(widthStr)
	if err != nil || width < 10 || width > 1920 {
		width = 480
	}

	cleanFootagePath := filepath.Clean(s.Cfg.FootagePath)
	cleanRequestPath := filepath.Clean(videoPath)

	var fullPath string
	if strings.HasPrefix(cleanRequestPath, cleanFootagePath) {
		fullPath = cleanRequestPath
	} else {
		fullPath = filepath.Join(cleanFootagePath, cleanRequestPath)
	}

	// The resolved path must stay inside the footage tree.
	if fullPath != cleanFootagePath && !strings.HasPrefix(fullPath, cleanFootagePath+string(os.PathSeparator)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video file not found"})
		return
	}

	thumbDir := s.Cfg.ThumbDir()
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		log.Error().Err(err).Msg("failed to create thumbnail dir")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	cacheKey := fmt.Sprintf("%s|%s|%d", fullPath, seekTime, width)
	hash := md5.Sum([]byte(cacheKey))
	thumbPath := filepath.Join(thumbDir, hex.EncodeToString(hash[:])+".jpg")

	if info, err := os.Stat(thumbPath); err == nil {
		if info.Size() > 0 {
			c.File(thumbPath)
			return
		}
		// Zero bytes means a failed earlier run; regenerate.
		os.Remove(thumbPath)
	}

	vf := fmt.Sprintf("scale=%d:-1", width)
	cmd := exec.Command("ffmpeg", "-y", "-ss", seekTime, "-i", fullPath, "-vframes", "1", "-vf", vf, "-q:v", "5", thumbPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Error().Err(err).Str("output", string(out)).Msg("thumbnail generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate thumbnail"})
		return
	}

	c.File(thumbPath)
}
