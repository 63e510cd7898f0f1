package services

import (
	"sync"

	"camviewer/models"
)

// PlaybackSession synchronizes the independent playback state of the four
// camera surfaces into one authoritative segment index. State only changes
// through UpdateState, Seek and Replay; rollover is decided by the pure
// AllEnded predicate so the machine is testable without any player.
type PlaybackSession struct {
	mu           sync.Mutex
	footage      *models.Footage
	states       map[string]models.PlayerState
	segmentIndex int
	clipEnded    bool
}

// PlaybackSnapshot is the aggregate state handed back to callers.
type PlaybackSnapshot struct {
	SegmentIndex  int     `json:"segment_index"`
	ClipEnded     bool    `json:"clip_ended"`
	PlayedSeconds float64 `json:"played_seconds"` // global timeline position
}

func NewPlaybackSession(footage *models.Footage) *PlaybackSession {
	return &PlaybackSession{
		footage: footage,
		states:  map[string]models.PlayerState{},
	}
}

// AllEnded reports whether every camera with a track in segment index has
// reported ended at that index. A single camera stuck on a previous segment
// holds the rollover back; a segment with no tracks is vacuously ended.
func AllEnded(footage *models.Footage, states map[string]models.PlayerState, index int) bool {
	if footage == nil || index < 0 || index >= len(footage.Segments) {
		return false
	}
	for cam := range footage.Segments[index].Handles {
		st, ok := states[cam]
		if !ok || st.Index != index || !st.Ended {
			return false
		}
	}
	return true
}

// UpdateState records one camera's reported state and advances the segment
// index when the current segment has ended on every present camera. Advancing
// past the last segment instead marks the clip ended; no further auto-advance
// happens until an explicit Seek or Replay.
func (p *PlaybackSession) UpdateState(camera string, state models.PlayerState) PlaybackSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states[camera] = state

	// Zero-track segments never receive ended reports; skip through them in
	// the same pass so playback does not stall on them.
	for !p.clipEnded && AllEnded(p.footage, p.states, p.segmentIndex) {
		if p.segmentIndex == len(p.footage.Segments)-1 {
			p.clipEnded = true
			break
		}
		p.segmentIndex++
		if len(p.footage.Segments[p.segmentIndex].Handles) > 0 {
			break
		}
	}

	return p.snapshotLocked()
}

// Seek applies a global-timeline target to every camera at once: one segment
// index, one local offset, ended flags cleared. Returns nil for empty footage.
func (p *PlaybackSession) Seek(targetSeconds float64) *models.SeekInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := CalcSeekInfo(p.footage, targetSeconds)
	if res == nil {
		return nil
	}

	p.segmentIndex = res.Index
	p.clipEnded = false
	for cam := range p.states {
		p.states[cam] = models.PlayerState{Index: res.Index, CurrentTime: res.Seconds}
	}
	return res
}

// Replay rewinds to the first segment.
func (p *PlaybackSession) Replay() PlaybackSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.segmentIndex = 0
	p.clipEnded = false
	p.states = map[string]models.PlayerState{}
	return p.snapshotLocked()
}

// Snapshot returns the current aggregate state.
func (p *PlaybackSession) Snapshot() PlaybackSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *PlaybackSession) snapshotLocked() PlaybackSnapshot {
	return PlaybackSnapshot{
		SegmentIndex:  p.segmentIndex,
		ClipEnded:     p.clipEnded,
		PlayedSeconds: p.playedSecondsLocked(),
	}
}

// playedSecondsLocked takes the maximum currentTime among cameras playing the
// active segment, so one camera lagging through a load hiccup does not
// under-report progress.
func (p *PlaybackSession) playedSecondsLocked() float64 {
	if p.footage == nil || p.segmentIndex >= len(p.footage.Segments) {
		return 0
	}
	segment := p.footage.Segments[p.segmentIndex]

	var local float64
	for _, st := range p.states {
		if st.Index == p.segmentIndex && st.CurrentTime > local {
			local = st.CurrentTime
		}
	}
	return segment.StartSeconds + local
}
