package services

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// progressParser reads ffmpeg `-progress` key=value output and reports the
// encoded position in seconds.
type progressParser struct {
	timeRegex   *regexp.Regexp
	timeUsRegex *regexp.Regexp
}

func newProgressParser() *progressParser {
	return &progressParser{
		timeRegex:   regexp.MustCompile(`^out_time=\s*([0-9:\.]+)`),
		timeUsRegex: regexp.MustCompile(`^out_time_us=\s*(\d+)`),
	}
}

// ParseLine extracts the encoded position from one progress line. The second
// return value is false when the line carries no position.
func (pp *progressParser) ParseLine(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line == "progress=continue" || line == "progress=end" {
		return 0, false
	}

	if matches := pp.timeUsRegex.FindStringSubmatch(line); len(matches) > 1 {
		if us, err := strconv.ParseInt(matches[1], 10, 64); err == nil {
			return float64(us) / 1e6, true
		}
	}
	if matches := pp.timeRegex.FindStringSubmatch(line); len(matches) > 1 {
		if seconds := timeToSeconds(matches[1]); seconds > 0 {
			return seconds, true
		}
	}
	return 0, false
}

// Stream reads progress output line by line and invokes the callback with
// every position update until the reader closes.
func (pp *progressParser) Stream(reader io.Reader, callback func(seconds float64)) error {
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if seconds, ok := pp.ParseLine(scanner.Text()); ok {
			callback(seconds)
		}
	}
	return scanner.Err()
}

// timeToSeconds converts ffmpeg HH:MM:SS.ms to seconds.
func timeToSeconds(timeStr string) float64 {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 3 {
		return 0
	}
	hours, err1 := strconv.ParseFloat(parts[0], 64)
	minutes, err2 := strconv.ParseFloat(parts[1], 64)
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return hours*3600 + minutes*60 + seconds
}
