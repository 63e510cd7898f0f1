package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"

	"camviewer/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.AutoMigrate(&models.Clip{}, &models.Segment{})
	return db
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("dummy"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIndexer_GroupingAndRegex(t *testing.T) {
	db := newTestDB(t)
	tmpDir := t.TempDir()

	recentDir := filepath.Join(tmpDir, "RecentClips", "2024-01-01")
	if err := os.MkdirAll(recentDir, 0755); err != nil {
		t.Fatal(err)
	}

	// 10:00:00 - minute 0, right camera missing
	writeFile(t, recentDir, "2024-01-01_10-00-00-front.mp4")
	writeFile(t, recentDir, "2024-01-01_10-00-00-back.mp4")
	writeFile(t, recentDir, "2024-01-01_10-00-00-left_repeater.mp4")

	// 10:01:00 - minute 1 with microsecond suffix, merges with minute 0
	writeFile(t, recentDir, "2024-01-01_10-01-00_123456-front.mp4")
	writeFile(t, recentDir, "2024-01-01_10-01-00_123456-back.mp4")
	writeFile(t, recentDir, "2024-01-01_10-01-00_123456-left_repeater.mp4")
	writeFile(t, recentDir, "2024-01-01_10-01-00_123456-right_repeater.mp4")

	// 12:00:00 - gap far beyond the merge bound, separate clip
	writeFile(t, recentDir, "2024-01-01_12-00-00-front.mp4")

	// Noise that must be skipped
	writeFile(t, recentDir, "notes.txt")
	writeFile(t, recentDir, "broken-name.mp4")
	writeFile(t, recentDir, "2024-01-01_10-00-00-cabin.mp4")

	indexer := NewIndexerService(tmpDir, db)
	indexer.ScanAll()

	var clips []models.Clip
	if err := db.Order("timestamp asc").Find(&clips).Error; err != nil {
		t.Fatal(err)
	}
	if len(clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(clips))
	}

	clip1 := clips[0]
	if clip1.Name != "2024-01-01_10-00-00" {
		t.Errorf("expected clip name from first segment, got %q", clip1.Name)
	}
	if clip1.Type != models.ClipTypeRecent {
		t.Errorf("expected recent type, got %q", clip1.Type)
	}
	if !filepath.IsAbs(clip1.ThumbPath) || filepath.Base(clip1.ThumbPath) != "2024-01-01_10-00-00-front.mp4" {
		t.Errorf("expected front thumb of first segment, got %q", clip1.ThumbPath)
	}

	var segs []models.Segment
	db.Where("clip_id = ?", clip1.ID).Order("timestamp asc").Find(&segs)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments in clip 1, got %d", len(segs))
	}
	if segs[0].RightPath != "" {
		t.Errorf("expected missing right camera in segment 0, got %q", segs[0].RightPath)
	}
	if segs[1].RightPath == "" {
		t.Error("expected right camera present in segment 1")
	}
	if segs[1].LeftPath == "" {
		t.Error("expected left_repeater classified into left slot")
	}

	var segs2 []models.Segment
	db.Where("clip_id = ?", clips[1].ID).Find(&segs2)
	if len(segs2) != 1 {
		t.Errorf("expected 1 segment in clip 2, got %d", len(segs2))
	}
}

func TestIndexer_EventSidecar(t *testing.T) {
	db := newTestDB(t)
	tmpDir := t.TempDir()

	sentryDir := filepath.Join(tmpDir, "SentryClips", "2024-01-01_10-00-00")
	os.MkdirAll(sentryDir, 0755)
	writeFile(t, sentryDir, "2024-01-01_10-00-00-front.mp4")
	writeFile(t, sentryDir, "2024-01-01_10-01-00-front.mp4")

	sidecar := `{
		"timestamp": "2024-01-01T10:00:30",
		"city": "Berlin",
		"street": "Unter den Linden",
		"est_lat": "52.51704",
		"est_lon": "13.38886",
		"reason": "sentry_aware_object_detection"
	}`
	if err := os.WriteFile(filepath.Join(sentryDir, "event.json"), []byte(sidecar), 0644); err != nil {
		t.Fatal(err)
	}

	indexer := NewIndexerService(tmpDir, db)
	indexer.ScanAll()

	var clip models.Clip
	if err := db.First(&clip).Error; err != nil {
		t.Fatal(err)
	}
	if clip.Type != models.ClipTypeSentry {
		t.Errorf("expected sentry type, got %q", clip.Type)
	}
	if clip.City != "Berlin" || clip.Street != "Unter den Linden" {
		t.Errorf("unexpected location: %q %q", clip.City, clip.Street)
	}
	if clip.EstLat == 0 || clip.EstLon == 0 {
		t.Errorf("expected coordinates parsed, got %f %f", clip.EstLat, clip.EstLon)
	}
	if clip.Reason != "sentry_aware_object_detection" {
		t.Errorf("unexpected reason %q", clip.Reason)
	}
	if clip.EventTimestamp == nil {
		t.Fatal("expected event timestamp")
	}
	if clip.EventTimestamp.Format("15:04:05") != "10:00:30" {
		t.Errorf("unexpected event timestamp %v", clip.EventTimestamp)
	}
}

func TestIndexer_MalformedSidecarIsNotFatal(t *testing.T) {
	db := newTestDB(t)
	tmpDir := t.TempDir()

	savedDir := filepath.Join(tmpDir, "SavedClips", "2024-01-01_10-00-00")
	os.MkdirAll(savedDir, 0755)
	writeFile(t, savedDir, "2024-01-01_10-00-00-front.mp4")
	os.WriteFile(filepath.Join(savedDir, "event.json"), []byte("{not json"), 0644)

	indexer := NewIndexerService(tmpDir, db)
	indexer.ScanAll()

	var clip models.Clip
	if err := db.First(&clip).Error; err != nil {
		t.Fatal(err)
	}
	if clip.Type != models.ClipTypeSaved {
		t.Errorf("expected saved type, got %q", clip.Type)
	}
	if clip.EventTimestamp != nil {
		t.Error("malformed sidecar must leave the clip without event metadata")
	}
}

func TestIndexer_EmptyTreeYieldsEmptyCatalog(t *testing.T) {
	db := newTestDB(t)
	indexer := NewIndexerService(t.TempDir(), db)
	indexer.ScanAll()

	var count int
	db.Model(&models.Clip{}).Count(&count)
	if count != 0 {
		t.Errorf("expected empty catalog, got %d clips", count)
	}
}

func TestIndexer_RescanReplacesCatalog(t *testing.T) {
	db := newTestDB(t)
	tmpDir := t.TempDir()

	recentDir := filepath.Join(tmpDir, "RecentClips")
	os.MkdirAll(recentDir, 0755)
	writeFile(t, recentDir, "2024-01-01_10-00-00-front.mp4")

	indexer := NewIndexerService(tmpDir, db)
	indexer.ScanAll()
	indexer.ScanAll()

	var count int
	db.Model(&models.Clip{}).Count(&count)
	if count != 1 {
		t.Errorf("rescan must replace, not duplicate: got %d clips", count)
	}
}
