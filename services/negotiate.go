package services

import (
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// OutputFormat is one container+codec combination the export pipeline can
// produce. Ext must match the container family.
type OutputFormat struct {
	Container string
	Encoder   string
	Ext       string
}

// formatCandidates is the negotiation priority: hardware H.264 first, then
// software H.264, then the webm fallbacks.
var formatCandidates = []OutputFormat{
	{Container: "mp4", Encoder: "h264_nvenc", Ext: "mp4"},
	{Container: "mp4", Encoder: "libx264", Ext: "mp4"},
	{Container: "webm", Encoder: "libvpx-vp9", Ext: "webm"},
	{Container: "webm", Encoder: "libvpx", Ext: "webm"},
}

// defaultFormat is used when nothing on the candidate list is reported as
// supported; ffmpeg builds without libx264 still accept it via its aliases.
var defaultFormat = OutputFormat{Container: "mp4", Encoder: "libx264", Ext: "mp4"}

// NegotiateFormat picks the first candidate whose encoder appears in the
// given `ffmpeg -encoders` listing.
func NegotiateFormat(encoderList string) OutputFormat {
	for _, cand := range formatCandidates {
		if strings.Contains(encoderList, cand.Encoder) {
			return cand
		}
	}
	return defaultFormat
}

var (
	detectOnce     sync.Once
	detectedFormat OutputFormat
)

// DetectFormat negotiates against the local ffmpeg once and caches the result.
func DetectFormat() OutputFormat {
	detectOnce.Do(func() {
		output, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
		if err != nil {
			log.Warn().Err(err).Msg("failed to list ffmpeg encoders, using default format")
			detectedFormat = defaultFormat
			return
		}
		detectedFormat = NegotiateFormat(string(output))
		log.Info().
			Str("container", detectedFormat.Container).
			Str("encoder", detectedFormat.Encoder).
			Msg("export format negotiated")
	})
	return detectedFormat
}
