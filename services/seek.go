package services

import (
	"camviewer/models"
)

// CalcSeekInfo maps a global timeline second onto the owning segment and the
// local offset inside it. The target is clamped to [0, duration]. A second
// exactly on a segment boundary belongs to the later segment; the last
// segment's upper bound is inclusive. Returns nil only for empty footage.
func CalcSeekInfo(footage *models.Footage, targetSeconds float64) *models.SeekInfo {
	if footage == nil || len(footage.Segments) == 0 {
		return nil
	}

	if targetSeconds < 0 {
		targetSeconds = 0
	}
	if targetSeconds > footage.Duration {
		targetSeconds = footage.Duration
	}

	last := len(footage.Segments) - 1
	for i := last; i >= 0; i-- {
		seg := footage.Segments[i]
		if targetSeconds >= seg.StartSeconds {
			return &models.SeekInfo{Index: i, Seconds: targetSeconds - seg.StartSeconds}
		}
	}
	return &models.SeekInfo{Index: 0, Seconds: 0}
}

// CalcEventSeconds maps the clip's event timestamp onto the footage timeline:
// the offset from the first segment's wall-clock start, clamped into
// [0, duration]. Nil when the clip has no event marker.
func CalcEventSeconds(clip *models.Clip, footage *models.Footage) *float64 {
	if clip == nil || clip.EventTimestamp == nil || footage == nil || len(footage.Segments) == 0 {
		return nil
	}

	start, err := models.ParseClipTime(footage.Segments[0].Name)
	if err != nil {
		return nil
	}

	seconds := clip.EventTimestamp.Sub(start).Seconds()
	if seconds < 0 {
		seconds = 0
	}
	if seconds > footage.Duration {
		seconds = footage.Duration
	}
	return &seconds
}
