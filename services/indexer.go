package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog/log"

	"camviewer/models"
)

// IndexerService turns the raw TeslaCam directory tree into Clip records.
type IndexerService struct {
	FootagePath string
	DB          *gorm.DB
}

var (
	// Tesla file format: 2019-01-21_14-15-20-front.mp4
	// Some firmwares append microseconds: 2024-01-01_10-01-00_123456-front.mp4
	fileRegex = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})(?:_\d+)?-([a-zA-Z0-9_]+)\.mp4$`)
)

// Consecutive RecentClips segments merge into one clip while the gap between
// their start timestamps stays within this bound (nominal segment length is
// one minute; recording restarts leave slightly larger gaps).
const mergeGapSeconds = 90

func NewIndexerService(footagePath string, db *gorm.DB) *IndexerService {
	return &IndexerService{
		FootagePath: footagePath,
		DB:          db,
	}
}

// segmentGroup accumulates the camera files of one minute-slice in one folder.
type segmentGroup struct {
	dir     string
	name    string
	ts      time.Time
	cameras map[string]string // camera name -> file path
}

// clipGroup is an ordered run of segments that forms one clip.
type clipGroup struct {
	dir      string
	clipType string
	segments []*segmentGroup
}

// ScanAll rebuilds the clip catalog from the footage directory. Unrecognized
// files are skipped; an empty footage tree yields an empty catalog.
func (s *IndexerService) ScanAll() {
	start := time.Now()
	log.Info().Str("path", s.FootagePath).Msg("starting footage scan")

	groups := map[string]*segmentGroup{}

	err := filepath.Walk(s.FootagePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Keep walking: a single unreadable entry must not kill the scan.
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".mp4") {
			return nil
		}
		matches := fileRegex.FindStringSubmatch(info.Name())
		if len(matches) != 3 {
			return nil
		}
		ts, perr := models.ParseClipTime(matches[1])
		if perr != nil {
			return nil
		}
		camera, ok := normalizeCameraName(matches[2])
		if !ok {
			return nil
		}

		dir := filepath.Dir(path)
		key := dir + "|" + matches[1]
		seg := groups[key]
		if seg == nil {
			seg = &segmentGroup{
				dir:     dir,
				name:    matches[1],
				ts:      ts,
				cameras: map[string]string{},
			}
			groups[key] = seg
		}
		seg.cameras[camera] = path
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("footage walk failed")
		return
	}

	clips := groupIntoClips(groups)

	tx := s.DB.Begin()
	// Re-scan replaces the whole catalog.
	tx.Unscoped().Delete(&models.Segment{})
	tx.Unscoped().Delete(&models.Clip{})
	for _, cg := range clips {
		s.storeClip(tx, cg)
	}
	if err := tx.Commit().Error; err != nil {
		log.Error().Err(err).Msg("catalog rebuild failed")
		return
	}

	log.Info().
		Dur("elapsed", time.Since(start)).
		Int("clips", len(clips)).
		Msg("scan complete")
}

// groupIntoClips orders segments and splits them into clip runs. Saved and
// Sentry clips are bounded by their event folder; Recent segments from the
// same folder merge while consecutive starts are close enough.
func groupIntoClips(groups map[string]*segmentGroup) []*clipGroup {
	byDir := map[string][]*segmentGroup{}
	for _, seg := range groups {
		byDir[seg.dir] = append(byDir[seg.dir], seg)
	}

	var clips []*clipGroup
	for dir, segs := range byDir {
		sort.Slice(segs, func(i, j int) bool { return segs[i].ts.Before(segs[j].ts) })
		clipType := clipTypeForPath(dir)

		if clipType != models.ClipTypeRecent {
			clips = append(clips, &clipGroup{dir: dir, clipType: clipType, segments: segs})
			continue
		}

		var current *clipGroup
		for _, seg := range segs {
			if current != nil {
				last := current.segments[len(current.segments)-1]
				if seg.ts.Sub(last.ts) <= mergeGapSeconds*time.Second {
					current.segments = append(current.segments, seg)
					continue
				}
			}
			current = &clipGroup{dir: dir, clipType: clipType, segments: []*segmentGroup{seg}}
			clips = append(clips, current)
		}
	}

	sort.Slice(clips, func(i, j int) bool {
		return clips[i].segments[0].ts.Before(clips[j].segments[0].ts)
	})
	return clips
}

func (s *IndexerService) storeClip(tx *gorm.DB, cg *clipGroup) {
	first := cg.segments[0]
	clip := models.Clip{
		Name:      first.name,
		Timestamp: first.ts,
		Type:      cg.clipType,
		ThumbPath: pickThumb(cg.segments),
	}

	if cg.clipType != models.ClipTypeRecent {
		applyEventSidecar(&clip, cg.dir)
	}

	if err := tx.Create(&clip).Error; err != nil {
		log.Error().Err(err).Str("clip", clip.Name).Msg("failed to store clip")
		return
	}

	for _, seg := range cg.segments {
		record := models.Segment{
			ClipID:    clip.ID,
			Name:      seg.name,
			Timestamp: seg.ts,
			FrontPath: seg.cameras[models.CameraFront],
			BackPath:  seg.cameras[models.CameraBack],
			LeftPath:  seg.cameras[models.CameraLeft],
			RightPath: seg.cameras[models.CameraRight],
		}
		if err := tx.Create(&record).Error; err != nil {
			log.Error().Err(err).Str("segment", seg.name).Msg("failed to store segment")
		}
	}
}

// pickThumb selects a representative frame source: the first front-camera
// file, falling back to the first file of any angle.
func pickThumb(segs []*segmentGroup) string {
	for _, seg := range segs {
		if p := seg.cameras[models.CameraFront]; p != "" {
			return p
		}
	}
	for _, seg := range segs {
		for _, cam := range models.CameraNames {
			if p := seg.cameras[cam]; p != "" {
				return p
			}
		}
	}
	return ""
}

// eventSidecar mirrors the event.json Tesla writes next to saved/sentry clips.
type eventSidecar struct {
	Timestamp string `json:"timestamp"`
	City      string `json:"city"`
	Street    string `json:"street"`
	EstLat    string `json:"est_lat"`
	EstLon    string `json:"est_lon"`
	Reason    string `json:"reason"`
}

// applyEventSidecar reads dir/event.json into the clip. Absence or a
// malformed sidecar leaves the clip without event metadata.
func applyEventSidecar(clip *models.Clip, dir string) {
	content, err := os.ReadFile(filepath.Join(dir, "event.json"))
	if err != nil {
		return
	}
	var ev eventSidecar
	if err := json.Unmarshal(content, &ev); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("malformed event.json")
		return
	}

	clip.City = ev.City
	clip.Street = ev.Street
	clip.Reason = ev.Reason
	if lat, err := strconv.ParseFloat(ev.EstLat, 64); err == nil {
		clip.EstLat = lat
	}
	if lon, err := strconv.ParseFloat(ev.EstLon, 64); err == nil {
		clip.EstLon = lon
	}

	// Tesla writes local time without zone, occasionally full RFC3339.
	if parsed, err := time.Parse("2006-01-02T15:04:05", ev.Timestamp); err == nil {
		clip.EventTimestamp = &parsed
	} else if parsed, err := time.Parse(time.RFC3339, ev.Timestamp); err == nil {
		clip.EventTimestamp = &parsed
	}
}

func clipTypeForPath(path string) string {
	switch {
	case strings.Contains(path, "SentryClips"):
		return models.ClipTypeSentry
	case strings.Contains(path, "SavedClips"):
		return models.ClipTypeSaved
	default:
		return models.ClipTypeRecent
	}
}

// normalizeCameraName maps a filename camera token onto one of the four
// viewer slots. Pillar/cabin angles have no slot and are skipped.
func normalizeCameraName(raw string) (string, bool) {
	switch strings.ToLower(raw) {
	case "front":
		return models.CameraFront, true
	case "back":
		return models.CameraBack, true
	case "left_repeater":
		return models.CameraLeft, true
	case "right_repeater":
		return models.CameraRight, true
	}
	return "", false
}
