package models

import (
	"time"
)

// ClipType categorizes the originating TeslaCam folder.
const (
	ClipTypeRecent = "recent"
	ClipTypeSaved  = "saved"
	ClipTypeSentry = "sentry"
)

// Clip is one user-meaningful recording event: a run of consecutive
// one-minute segments. Name is the timestamp string of the first segment.
type Clip struct {
	ID        uint       `gorm:"primary_key" json:"ID"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
	DeletedAt *time.Time `sql:"index" json:"-"`

	Name      string    `json:"name" gorm:"index"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
	Type      string    `json:"type"` // recent, saved, sentry
	ThumbPath string    `json:"thumb_path"`
	Segments  []Segment `json:"segments"`

	// Populated from the event.json sidecar when present.
	EventTimestamp *time.Time `json:"event_timestamp"`
	City           string     `json:"city"`
	Street         string     `json:"street"`
	EstLat         float64    `json:"est_lat"`
	EstLon         float64    `json:"est_lon"`
	Reason         string     `json:"reason"`
}

// HasEvent reports whether the clip carries sidecar event metadata.
func (c *Clip) HasEvent() bool {
	return c.EventTimestamp != nil
}

// Segment is one fixed-length time-slice of a clip with up to four camera
// files. Any camera path may be empty if that angle's file is missing.
type Segment struct {
	ID        uint       `gorm:"primary_key" json:"ID"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
	DeletedAt *time.Time `sql:"index" json:"-"`

	ClipID    uint      `json:"-" gorm:"index"`
	Name      string    `json:"name"` // timestamp string, e.g. 2024-01-01_10-00-00
	Timestamp time.Time `json:"timestamp" gorm:"index"`

	FrontPath string `json:"front_path"`
	BackPath  string `json:"back_path"`
	LeftPath  string `json:"left_path"`
	RightPath string `json:"right_path"`
}

// CameraPath returns the file path for the named camera, or "".
func (s *Segment) CameraPath(camera string) string {
	switch camera {
	case CameraFront:
		return s.FrontPath
	case CameraBack:
		return s.BackPath
	case CameraLeft:
		return s.LeftPath
	case CameraRight:
		return s.RightPath
	}
	return ""
}

// CameraPaths returns the present camera tracks keyed by camera name.
func (s *Segment) CameraPaths() map[string]string {
	out := make(map[string]string, 4)
	for _, cam := range CameraNames {
		if p := s.CameraPath(cam); p != "" {
			out[cam] = p
		}
	}
	return out
}

// TimeLayout is the Tesla filename timestamp layout.
const TimeLayout = "2006-01-02_15-04-05"

// ParseClipTime parses a clip/segment name into a wall-clock time.
func ParseClipTime(name string) (time.Time, error) {
	return time.Parse(TimeLayout, name)
}
