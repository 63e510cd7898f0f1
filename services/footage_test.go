package services

import (
	"fmt"
	"testing"

	"camviewer/models"
)

// fakeProber returns canned durations keyed by file path.
func fakeProber(durations map[string]float64) Prober {
	return func(path string) (*ProbeResult, error) {
		d, ok := durations[path]
		if !ok {
			return nil, fmt.Errorf("unknown file %s", path)
		}
		return &ProbeResult{Duration: d, Width: 1280, Height: 960}, nil
	}
}

func testClip() *models.Clip {
	return &models.Clip{
		ID:   1,
		Name: "2024-01-01_10-00-00",
		Segments: []models.Segment{
			{
				Name:      "2024-01-01_10-00-00",
				FrontPath: "/f/seg0-front.mp4",
				BackPath:  "/f/seg0-back.mp4",
			},
			{
				Name:      "2024-01-01_10-01-00",
				FrontPath: "/f/seg1-front.mp4",
			},
		},
	}
}

func TestOpenClip_Timeline(t *testing.T) {
	svc := NewFootageService(fakeProber(map[string]float64{
		"/f/seg0-front.mp4": 60.02,
		"/f/seg0-back.mp4":  59.94,
		"/f/seg1-front.mp4": 45,
	}), 2)

	footage, err := svc.OpenClip(testClip())
	if err != nil {
		t.Fatal(err)
	}

	if len(footage.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(footage.Segments))
	}
	// Minimum of the available tracks wins when they disagree.
	if footage.Segments[0].Duration != 59.94 {
		t.Errorf("expected min track duration 59.94, got %v", footage.Segments[0].Duration)
	}
	// A single present track is authoritative.
	if footage.Segments[1].Duration != 45 {
		t.Errorf("expected 45, got %v", footage.Segments[1].Duration)
	}
	if footage.Segments[0].StartSeconds != 0 {
		t.Errorf("first segment must start at 0, got %v", footage.Segments[0].StartSeconds)
	}
	if footage.Segments[1].StartSeconds != 59.94 {
		t.Errorf("start offsets must be the running sum, got %v", footage.Segments[1].StartSeconds)
	}
	if footage.Duration != 59.94+45 {
		t.Errorf("footage duration must be the segment sum, got %v", footage.Duration)
	}

	if len(footage.Segments[0].Handles) != 2 {
		t.Errorf("expected 2 handles on segment 0, got %d", len(footage.Segments[0].Handles))
	}
	token := footage.Segments[0].Handles[models.CameraFront]
	path, ok := svc.ResolveHandle(token)
	if !ok || path != "/f/seg0-front.mp4" {
		t.Errorf("handle must resolve to the source path, got %q (%v)", path, ok)
	}
}

func TestOpenClip_SegmentWithNoUsableTrack(t *testing.T) {
	// seg0 probes fail entirely; the segment must be retained with zero
	// duration so offsets match the catalog's segment list.
	svc := NewFootageService(fakeProber(map[string]float64{
		"/f/seg1-front.mp4": 45,
	}), 2)

	footage, err := svc.OpenClip(testClip())
	if err != nil {
		t.Fatal(err)
	}
	if len(footage.Segments) != 2 {
		t.Fatalf("segments must not be dropped, got %d", len(footage.Segments))
	}
	if footage.Segments[0].Duration != 0 || len(footage.Segments[0].Handles) != 0 {
		t.Errorf("broken segment must contribute no time and no handles: %+v", footage.Segments[0])
	}
	if footage.Segments[1].StartSeconds != 0 {
		t.Errorf("offsets must stay consistent, got %v", footage.Segments[1].StartSeconds)
	}
	if footage.Duration != 45 {
		t.Errorf("expected 45, got %v", footage.Duration)
	}
}

func TestOpenClip_EmptyClip(t *testing.T) {
	svc := NewFootageService(fakeProber(nil), 1)
	if _, err := svc.OpenClip(&models.Clip{Name: "x"}); err == nil {
		t.Error("expected error for clip without segments")
	}
}

func TestRelease_RevokesHandlesIdempotently(t *testing.T) {
	svc := NewFootageService(fakeProber(map[string]float64{
		"/f/seg0-front.mp4": 60,
		"/f/seg0-back.mp4":  60,
		"/f/seg1-front.mp4": 45,
	}), 2)

	footage, err := svc.OpenClip(testClip())
	if err != nil {
		t.Fatal(err)
	}
	token := footage.Segments[0].Handles[models.CameraFront]

	svc.Release()
	if _, ok := svc.ResolveHandle(token); ok {
		t.Error("handle must be revoked after release")
	}
	if svc.Active() != nil {
		t.Error("no footage must be active after release")
	}

	// Repeated release is a no-op.
	svc.Release()
	svc.Release()
}

func TestOpenClip_ReleasesPreviousFootage(t *testing.T) {
	svc := NewFootageService(fakeProber(map[string]float64{
		"/f/seg0-front.mp4": 60,
		"/f/seg0-back.mp4":  60,
		"/f/seg1-front.mp4": 45,
	}), 2)

	first, err := svc.OpenClip(testClip())
	if err != nil {
		t.Fatal(err)
	}
	oldToken := first.Segments[0].Handles[models.CameraFront]

	second, err := svc.OpenClip(testClip())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := svc.ResolveHandle(oldToken); ok {
		t.Error("previous footage's handles must be revoked on open")
	}
	newToken := second.Segments[0].Handles[models.CameraFront]
	if _, ok := svc.ResolveHandle(newToken); !ok {
		t.Error("new footage's handles must resolve")
	}
}
