package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// parseProgress consumes ffmpeg's -progress key=value stream and turns
// out_time counters into percent callbacks. The stream is advisory: any
// parse problem simply stops reporting, it never fails the transcode.
func parseProgress(r io.Reader, totalSeconds float64, onProgress func(int)) {
	if onProgress == nil {
		io.Copy(io.Discard, r)
		return
	}

	totalUs := totalSeconds * 1e6
	scanner := bufio.NewScanner(r)
	last := -1

	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}

		switch key {
		// Despite the name, ffmpeg reports out_time_ms in microseconds,
		// same as out_time_us.
		case "out_time_us", "out_time_ms":
			if totalUs <= 0 {
				continue
			}
			us, err := strconv.ParseFloat(value, 64)
			if err != nil || us < 0 {
				continue
			}
			pct := int(us / totalUs * 100)
			if pct > 99 {
				pct = 99
			}
			if pct > last {
				last = pct
				onProgress(pct)
			}
		case "progress":
			if value == "end" && last < 100 {
				last = 100
				onProgress(100)
			}
		}
	}
}
