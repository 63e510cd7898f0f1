package services

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"camviewer/models"
)

// FootageService resolves a clip into its playable timeline and owns the
// serving handles of the currently open footage. At most one footage is live;
// opening a clip revokes the previous one's handles first.
type FootageService struct {
	Prober      Prober
	Concurrency int

	mu      sync.Mutex
	handles map[string]string // token -> file path
	active  *models.Footage
}

func NewFootageService(prober Prober, concurrency int) *FootageService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &FootageService{
		Prober:      prober,
		Concurrency: concurrency,
		handles:     map[string]string{},
	}
}

// OpenClip builds the Footage for a clip: probes every present camera track,
// derives per-segment durations and start offsets, and registers one serving
// handle per track. Segments with no usable track are kept with zero duration
// so offsets stay consistent with the catalog's segment list.
func (f *FootageService) OpenClip(clip *models.Clip) (*models.Footage, error) {
	if len(clip.Segments) == 0 {
		return nil, fmt.Errorf("clip %s has no segments", clip.Name)
	}

	type probeJob struct {
		segment int
		camera  string
		path    string
	}
	var jobs []probeJob
	for i := range clip.Segments {
		for cam, path := range clip.Segments[i].CameraPaths() {
			jobs = append(jobs, probeJob{segment: i, camera: cam, path: path})
		}
	}

	durations := make([]map[string]float64, len(clip.Segments))
	for i := range durations {
		durations[i] = map[string]float64{}
	}

	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
	)
	semaphore := make(chan struct{}, f.Concurrency)
	for _, job := range jobs {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(job probeJob) {
			defer wg.Done()
			defer func() { <-semaphore }()
			res, err := f.Prober(job.path)
			if err != nil {
				// A broken track is dropped; the segment may still play
				// on its remaining cameras.
				log.Warn().Err(err).Str("path", job.path).Msg("probe failed")
				return
			}
			resultsMu.Lock()
			durations[job.segment][job.camera] = res.Duration
			resultsMu.Unlock()
		}(job)
	}
	wg.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseLocked()

	footage := &models.Footage{ClipID: clip.ID}
	var offset float64
	for i := range clip.Segments {
		seg := clip.Segments[i]
		fs := models.FootageSegment{
			Name:         seg.Name,
			StartSeconds: offset,
			Duration:     segmentDuration(durations[i]),
			Handles:      map[string]string{},
		}
		for cam := range durations[i] {
			token := uuid.NewString()
			f.handles[token] = seg.CameraPath(cam)
			fs.Handles[cam] = token
		}
		offset += fs.Duration
		footage.Segments = append(footage.Segments, fs)
	}
	footage.Duration = offset
	f.active = footage
	return footage, nil
}

// segmentDuration applies the minimum-duration policy: the timeline never
// claims time that some live camera cannot render. A lone track is
// authoritative; no probed tracks means zero duration.
func segmentDuration(tracks map[string]float64) float64 {
	min := 0.0
	first := true
	for _, d := range tracks {
		if first || d < min {
			min = d
			first = false
		}
	}
	return min
}

// Active returns the currently open footage, or nil.
func (f *FootageService) Active() *models.Footage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// ResolveHandle maps a serving token back to its file path.
func (f *FootageService) ResolveHandle(token string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.handles[token]
	return path, ok
}

// Release revokes every handle of the open footage. Safe to call repeatedly
// or with nothing open.
func (f *FootageService) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseLocked()
}

func (f *FootageService) releaseLocked() {
	if f.active == nil && len(f.handles) == 0 {
		return
	}
	f.handles = map[string]string{}
	f.active = nil
}
