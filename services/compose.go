package services

import (
	"fmt"
	"strings"

	"camviewer/models"
)

// inputPart is one ffmpeg input: a slice of a single camera file.
type inputPart struct {
	path     string
	offset   float64 // -ss, local to the file
	duration float64 // -t
}

// collectParts gathers, per camera, the file slices covering the export
// window [start, start+length) in timeline order. Segments where the camera
// has no track simply contribute nothing.
func collectParts(clip *models.Clip, footage *models.Footage, camera string, start, length float64) []inputPart {
	end := start + length
	var parts []inputPart
	for i, fs := range footage.Segments {
		if i >= len(clip.Segments) {
			break
		}
		segStart := fs.StartSeconds
		segEnd := segStart + fs.Duration
		in := start
		if segStart > in {
			in = segStart
		}
		out := end
		if segEnd < out {
			out = segEnd
		}
		if out <= in {
			continue
		}
		path := clip.Segments[i].CameraPath(camera)
		if path == "" {
			continue
		}
		parts = append(parts, inputPart{
			path:     path,
			offset:   in - segStart,
			duration: out - in,
		})
	}
	return parts
}

// viewCameras lists the camera angles a view composites, in draw order
// (grid quadrants: front top-left, back top-right, left bottom-left,
// right bottom-right).
func viewCameras(view string) []string {
	if view == models.ViewGrid {
		return models.CameraNames
	}
	return []string{view}
}

// buildExportArgs assembles the full ffmpeg invocation for a video export:
// per-slice trimmed inputs, per-camera concat, the stack layout, the
// time/location overlay and the negotiated encoder/container.
func (s *ExporterService) buildExportArgs(clip *models.Clip, footage *models.Footage, view string, start, length float64, format OutputFormat, outPath string) ([]string, error) {
	var args []string
	var filters []string
	var camLabels []string
	inputIndex := 0

	for _, cam := range viewCameras(view) {
		parts := collectParts(clip, footage, cam, start, length)
		if len(parts) == 0 {
			continue
		}

		var partLabels []string
		for _, part := range parts {
			args = append(args,
				"-ss", fmt.Sprintf("%.3f", part.offset),
				"-t", fmt.Sprintf("%.3f", part.duration),
				"-i", part.path,
			)
			partLabels = append(partLabels, fmt.Sprintf("[%d:v]", inputIndex))
			inputIndex++
		}

		if len(parts) == 1 {
			camLabels = append(camLabels, partLabels[0])
			continue
		}
		label := fmt.Sprintf("[%s]", cam)
		filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=0%s",
			strings.Join(partLabels, ""), len(parts), label))
		camLabels = append(camLabels, label)
	}

	if len(camLabels) == 0 {
		return nil, fmt.Errorf("no usable camera track for view %q", view)
	}

	stacked := camLabels[0]
	switch len(camLabels) {
	case 1:
		// Single stream, no stacking.
	case 2:
		stacked = "[stacked]"
		filters = append(filters, fmt.Sprintf("%s%shstack=inputs=2%s", camLabels[0], camLabels[1], stacked))
	case 3:
		stacked = "[stacked]"
		filters = append(filters, fmt.Sprintf("%s%s%shstack=inputs=3%s", camLabels[0], camLabels[1], camLabels[2], stacked))
	default:
		stacked = "[stacked]"
		filters = append(filters, fmt.Sprintf("%sxstack=inputs=4:layout=0_0|w0_0|0_h0|w0_h0%s",
			strings.Join(camLabels, ""), stacked))
	}

	filters = append(filters, stacked+overlayFilter(clip, footage, start)+"[v]")

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[v]",
		"-an",
		"-r", fmt.Sprintf("%d", s.FPS),
		"-c:v", format.Encoder,
		"-b:v", s.Bitrate,
		"-f", format.Container,
		"-progress", "pipe:1",
		"-nostats",
		"-y", outPath,
	)
	return args, nil
}

// buildScreenshotArgs assembles a one-frame capture of the view at a global
// timeline second.
func (s *ExporterService) buildScreenshotArgs(clip *models.Clip, footage *models.Footage, view string, atSeconds float64, outPath string) ([]string, error) {
	seekInfo := CalcSeekInfo(footage, atSeconds)
	if seekInfo == nil {
		return nil, fmt.Errorf("footage has no segments")
	}
	if seekInfo.Index >= len(clip.Segments) {
		return nil, fmt.Errorf("segment index out of range")
	}
	segment := clip.Segments[seekInfo.Index]

	var args []string
	var filters []string
	var camLabels []string
	inputIndex := 0

	for _, cam := range viewCameras(view) {
		path := segment.CameraPath(cam)
		if path == "" {
			continue
		}
		args = append(args,
			"-ss", fmt.Sprintf("%.3f", seekInfo.Seconds),
			"-i", path,
		)
		camLabels = append(camLabels, fmt.Sprintf("[%d:v]", inputIndex))
		inputIndex++
	}
	if len(camLabels) == 0 {
		return nil, fmt.Errorf("no usable camera track for view %q", view)
	}

	stacked := camLabels[0]
	if len(camLabels) >= 2 {
		stacked = "[stacked]"
		if len(camLabels) == 4 {
			filters = append(filters, fmt.Sprintf("%sxstack=inputs=4:layout=0_0|w0_0|0_h0|w0_h0%s",
				strings.Join(camLabels, ""), stacked))
		} else {
			filters = append(filters, fmt.Sprintf("%shstack=inputs=%d%s",
				strings.Join(camLabels, ""), len(camLabels), stacked))
		}
	}

	filters = append(filters, stacked+overlayFilter(clip, footage, atSeconds)+"[v]")

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[v]",
		"-frames:v", "1",
		"-q:v", "2",
		"-f", "image2",
		"-y", outPath,
	)
	return args, nil
}

// overlayFilter renders the fixed-position time/location box: a running
// wall-clock line anchored at the window's start plus the event location.
func overlayFilter(clip *models.Clip, footage *models.Footage, startSeconds float64) string {
	var epoch int64
	if info := CalcSeekInfo(footage, startSeconds); info != nil && info.Index < len(footage.Segments) {
		if t, err := models.ParseClipTime(footage.Segments[info.Index].Name); err == nil {
			epoch = t.Unix() + int64(info.Seconds)
		}
	}

	timeText := fmt.Sprintf("%%{pts\\:gmtime\\:%d\\:%%Y-%%m-%%d %%H\\\\\\:%%M\\\\\\:%%S}", epoch)
	timeFilter := fmt.Sprintf(
		"drawtext=font=Sans:fontsize=36:fontcolor=0xe5e5e5:box=1:boxcolor=0x00000099:boxborderw=16:x=40:y=40:text='%s'",
		timeText)

	location := locationText(clip)
	locationFilter := fmt.Sprintf(
		"drawtext=font=Sans:fontsize=28:fontcolor=0xa3a3a3:box=1:boxcolor=0x00000099:boxborderw=16:x=40:y=100:text='%s'",
		escapeDrawtext(location))

	return timeFilter + "," + locationFilter
}

// locationText mirrors the viewer's overlay line: "city street (lat, lon)".
func locationText(clip *models.Clip) string {
	if clip == nil || !clip.HasEvent() {
		return "no location data"
	}
	var nameParts []string
	if clip.City != "" {
		nameParts = append(nameParts, clip.City)
	}
	if clip.Street != "" {
		nameParts = append(nameParts, clip.Street)
	}
	name := strings.Join(nameParts, " ")

	coord := ""
	if clip.EstLat != 0 || clip.EstLon != 0 {
		coord = fmt.Sprintf("%.5f, %.5f", clip.EstLat, clip.EstLon)
	}

	switch {
	case name != "" && coord != "":
		return fmt.Sprintf("%s (%s)", name, coord)
	case name != "":
		return name
	case coord != "":
		return coord
	}
	return "no location data"
}

// escapeDrawtext strips the characters that would break drawtext parsing.
func escapeDrawtext(text string) string {
	r := strings.NewReplacer("'", "", ":", "\\:", "%", "", "\\", "", ",", " ", ";", " ")
	return r.Replace(text)
}
