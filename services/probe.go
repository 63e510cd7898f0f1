package services

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeResult is the subset of ffprobe output footage resolution needs.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
}

// Prober inspects a media file for its true duration. Injected so timeline
// tests run without ffprobe.
type Prober func(path string) (*ProbeResult, error)

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeFile extracts duration and dimensions using ffprobe.
func ProbeFile(path string) (*ProbeResult, error) {
	if path == "" {
		return nil, fmt.Errorf("source path cannot be empty")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	}
	output, err := exec.Command("ffprobe", args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w (output: %s)", err, string(output))
	}

	var raw ffprobeOutput
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	duration, err := strconv.ParseFloat(raw.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration '%s': %w", raw.Format.Duration, err)
	}

	res := &ProbeResult{Duration: duration}
	for _, stream := range raw.Streams {
		if stream.CodecType == "video" {
			res.Width = stream.Width
			res.Height = stream.Height
			break
		}
	}
	return res, nil
}
