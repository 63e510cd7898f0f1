package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"camviewer/models"
)

// MaxExportSeconds caps the length of any single export.
const MaxExportSeconds = 60

var (
	ErrExportBusy      = errors.New("an export is already in progress")
	ErrNothingToExport = errors.New("nothing to export")
)

// ExportRequest describes one export invocation. The window is the in/out
// marks when both are set and out > in, otherwise it runs from StartSeconds
// to the end of the footage. The cap applies after that resolution.
type ExportRequest struct {
	ClipID       uint     `json:"clip_id"`
	View         string   `json:"view"` // grid, front, back, left, right
	StartSeconds float64  `json:"start_seconds"`
	InSeconds    *float64 `json:"in_seconds,omitempty"`
	OutSeconds   *float64 `json:"out_seconds,omitempty"`
}

func (r *ExportRequest) Validate() error {
	if r.ClipID == 0 {
		return fmt.Errorf("clip_id is required")
	}
	if !models.ValidView(r.View) {
		return fmt.Errorf("invalid view %q", r.View)
	}
	if r.StartSeconds < 0 {
		return fmt.Errorf("start_seconds must not be negative")
	}
	if r.InSeconds != nil && *r.InSeconds < 0 {
		return fmt.Errorf("in_seconds must not be negative")
	}
	return nil
}

// ResolveWindow computes the effective export window against the footage:
// start second and length = min(requested, cap, remaining footage).
func (r *ExportRequest) ResolveWindow(footage *models.Footage) (start, length float64, err error) {
	start = r.StartSeconds
	requested := footage.Duration - start
	if r.InSeconds != nil && r.OutSeconds != nil && *r.OutSeconds > *r.InSeconds {
		start = *r.InSeconds
		requested = *r.OutSeconds - *r.InSeconds
	}

	length = requested
	if remaining := footage.Duration - start; remaining < length {
		length = remaining
	}
	if length > MaxExportSeconds {
		length = MaxExportSeconds
	}
	if length <= 0 {
		return 0, 0, ErrNothingToExport
	}
	return start, length, nil
}

// Export job states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCanceled   = "canceled"
	StatusFailed     = "failed"
)

// ExportStatus tracks one export job.
type ExportStatus struct {
	JobID     string  `json:"job_id"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	FilePath  string  `json:"file_path"`
	Error     string  `json:"error,omitempty"`
	CreatedAt time.Time
}

// EncodeRunner launches the encode process and feeds its progress stream.
// Injected so pipeline tests run without ffmpeg.
type EncodeRunner interface {
	Run(ctx context.Context, args []string, onProgress func(seconds float64)) error
}

// ExporterService drives export and screenshot jobs. The compositing surface
// is exclusive to one in-flight job: a second request while one runs is
// rejected rather than queued.
type ExporterService struct {
	Saver   Saver
	Runner  EncodeRunner
	Format  func() OutputFormat
	FPS     int
	Bitrate string

	slot chan struct{}

	mu      sync.Mutex
	jobs    map[string]*ExportStatus
	cancels map[string]context.CancelFunc
	flagged map[string]bool // user-initiated cancel, checked after the run
}

func NewExporterService(saver Saver, fps int, bitrate string) *ExporterService {
	s := &ExporterService{
		Saver:   saver,
		Runner:  &ffmpegRunner{},
		Format:  DetectFormat,
		FPS:     fps,
		Bitrate: bitrate,
		slot:    make(chan struct{}, 1),
		jobs:    map[string]*ExportStatus{},
		cancels: map[string]context.CancelFunc{},
		flagged: map[string]bool{},
	}
	go s.cleanupHistory()
	return s
}

// QueueExport validates and starts an export job, returning its ID.
func (s *ExporterService) QueueExport(req ExportRequest, clip *models.Clip, footage *models.Footage) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	start, length, err := req.ResolveWindow(footage)
	if err != nil {
		return "", err
	}

	select {
	case s.slot <- struct{}{}:
	default:
		return "", ErrExportBusy
	}

	jobID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.jobs[jobID] = &ExportStatus{
		JobID:     jobID,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	s.cancels[jobID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() { <-s.slot }()
		defer cancel()
		s.process(ctx, jobID, req, clip, footage, start, length)
	}()

	return jobID, nil
}

// GetStatus returns the status of a job.
func (s *ExporterService) GetStatus(jobID string) (*ExportStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	copied := *status
	return &copied, true
}

// Cancel requests a cooperative stop of a running job. The encoder is torn
// down on the next progress report at the latest; no artifact is produced.
func (s *ExporterService) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.cancels[jobID]
	if !ok {
		return false
	}
	s.flagged[jobID] = true
	cancel()
	return true
}

func (s *ExporterService) process(ctx context.Context, jobID string, req ExportRequest, clip *models.Clip, footage *models.Footage, start, length float64) {
	s.updateStatus(jobID, StatusProcessing, 0, "")

	format := s.Format()
	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("camviewer-%s.%s", jobID, format.Ext))
	defer os.Remove(tmpPath)

	args, err := s.buildExportArgs(clip, footage, req.View, start, length, format, tmpPath)
	if err != nil {
		s.failJob(jobID, err)
		return
	}

	log.Info().
		Str("job", jobID).
		Str("view", req.View).
		Float64("start", start).
		Float64("length", length).
		Msg("export started")

	runErr := s.Runner.Run(ctx, args, func(seconds float64) {
		progress := seconds / length * 100
		if progress > 100 {
			progress = 100
		}
		s.updateStatus(jobID, StatusProcessing, progress, "")
	})

	if s.wasCanceled(jobID) {
		// User-initiated: silent reset, the partial file is discarded and
		// never reaches the saver.
		s.updateStatus(jobID, StatusCanceled, 0, "")
		log.Info().Str("job", jobID).Msg("export canceled")
		return
	}
	if runErr != nil {
		s.failJob(jobID, fmt.Errorf("encoding failed: %w", runErr))
		return
	}

	payload, err := os.ReadFile(tmpPath)
	if err != nil {
		s.failJob(jobID, fmt.Errorf("failed to read encoder output: %w", err))
		return
	}
	if len(payload) == 0 {
		s.failJob(jobID, fmt.Errorf("empty video file produced"))
		return
	}

	fileName := fmt.Sprintf("%s-%s.%s", clip.Name, req.View, format.Ext)
	dest, err := s.Saver.Save(fileName, payload)
	if err != nil {
		s.failJob(jobID, fmt.Errorf("save failed: %w", err))
		return
	}

	s.mu.Lock()
	if status, ok := s.jobs[jobID]; ok {
		status.Status = StatusCompleted
		status.Progress = 100
		status.FilePath = dest // empty when the user dismissed the save
	}
	s.mu.Unlock()

	if dest != "" {
		s.Saver.Reveal(dest)
	}
	log.Info().Str("job", jobID).Str("file", dest).Msg("export complete")
}

// Screenshot composites exactly one frame of the requested view at the given
// global second and hands it to the saver as a JPEG. No recorder is involved.
func (s *ExporterService) Screenshot(clip *models.Clip, footage *models.Footage, view string, atSeconds float64) (string, error) {
	if !models.ValidView(view) {
		return "", fmt.Errorf("invalid view %q", view)
	}

	select {
	case s.slot <- struct{}{}:
	default:
		return "", ErrExportBusy
	}
	defer func() { <-s.slot }()

	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("camviewer-%s.jpg", uuid.NewString()))
	defer os.Remove(tmpPath)

	args, err := s.buildScreenshotArgs(clip, footage, view, atSeconds, tmpPath)
	if err != nil {
		return "", err
	}
	if err := s.Runner.Run(context.Background(), args, nil); err != nil {
		return "", fmt.Errorf("frame capture failed: %w", err)
	}

	payload, err := os.ReadFile(tmpPath)
	if err != nil || len(payload) == 0 {
		return "", fmt.Errorf("empty screenshot produced")
	}

	fileName := fmt.Sprintf("%s-%s.jpg", clip.Name, view)
	dest, err := s.Saver.Save(fileName, payload)
	if err != nil {
		return "", err
	}
	if dest != "" {
		s.Saver.Reveal(dest)
	}
	return dest, nil
}

func (s *ExporterService) updateStatus(jobID, state string, progress float64, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.jobs[jobID]; ok {
		status.Status = state
		status.Progress = progress
		status.Error = errMsg
	}
}

func (s *ExporterService) failJob(jobID string, err error) {
	log.Error().Err(err).Str("job", jobID).Msg("export failed")
	s.updateStatus(jobID, StatusFailed, 0, err.Error())
}

func (s *ExporterService) wasCanceled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagged[jobID]
}

func (s *ExporterService) cleanupHistory() {
	for {
		time.Sleep(10 * time.Minute)
		s.mu.Lock()
		for id, status := range s.jobs {
			if time.Since(status.CreatedAt) > time.Hour {
				delete(s.jobs, id)
				delete(s.cancels, id)
				delete(s.flagged, id)
			}
		}
		s.mu.Unlock()
	}
}

// ffmpegRunner is the production EncodeRunner: it executes ffmpeg with
// `-progress pipe:1` and streams position updates from stdout.
type ffmpegRunner struct{}

func (r *ffmpegRunner) Run(ctx context.Context, args []string, onProgress func(float64)) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	parser := newProgressParser()
	parser.Stream(stdout, func(seconds float64) {
		if onProgress != nil {
			onProgress(seconds)
		}
	})

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 400 {
			msg = msg[len(msg)-400:]
		}
		return fmt.Errorf("%w: %s", err, msg)
	}
	return nil
}
