package models

// Camera angle names as they appear in Tesla filenames (normalized).
const (
	CameraFront = "front"
	CameraBack  = "back"
	CameraLeft  = "left"
	CameraRight = "right"
)

// CameraNames lists the four angles in grid-draw order.
var CameraNames = []string{CameraFront, CameraBack, CameraLeft, CameraRight}

// View types selectable in the viewer and for export.
const (
	ViewGrid  = "grid"
	ViewFront = "front"
	ViewBack  = "back"
	ViewLeft  = "left"
	ViewRight = "right"
)

// ValidView reports whether v names a selectable view.
func ValidView(v string) bool {
	switch v {
	case ViewGrid, ViewFront, ViewBack, ViewLeft, ViewRight:
		return true
	}
	return false
}

// FootageSegment is the resolved, playable form of one Segment: probed
// duration, cumulative start offset, and one serving handle per present
// camera. Handles map camera name to an opaque token served by the video
// route; a missing camera simply has no entry.
type FootageSegment struct {
	Name         string            `json:"name"`
	StartSeconds float64           `json:"start_seconds"`
	Duration     float64           `json:"duration"`
	Handles      map[string]string `json:"handles"`
}

// Footage is the playable timeline of one clip. It exclusively owns the
// serving handles it registered; Release on the owning service revokes them.
type Footage struct {
	ClipID   uint             `json:"clip_id"`
	Segments []FootageSegment `json:"segments"`
	Duration float64          `json:"duration"`
}

// PlayerState is the live state reported by one camera's playback surface.
type PlayerState struct {
	Index       int     `json:"index"`        // segment being played
	CurrentTime float64 `json:"current_time"` // local offset within the segment
	Ended       bool    `json:"ended"`
}

// SeekInfo maps a global timeline second into segment space.
type SeekInfo struct {
	Index   int     `json:"index"`
	Seconds float64 `json:"seconds"`
}
