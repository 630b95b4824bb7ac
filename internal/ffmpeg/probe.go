package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/clipforge/exportd/internal/export"
)

type probePayload struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe reads container duration and video stream geometry via ffprobe.
func (t *Tools) Probe(ctx context.Context, path string) (*export.ProbeResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, probeBudget)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	configureProcessGroup(cmd)

	var stdout bytes.Buffer
	stderr := &tailWriter{limit: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %s: %w", truncate(stderr.String(), 512), err)
	}

	var payload probePayload
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &export.ProbeResult{}
	if payload.Format.Duration != "" {
		d, err := strconv.ParseFloat(payload.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parse ffprobe duration %q: %w", payload.Format.Duration, err)
		}
		result.Duration = d
	}

	for _, s := range payload.Streams {
		if s.CodecType == "video" {
			result.Width = s.Width
			result.Height = s.Height
			result.Codec = s.CodecName
			break
		}
	}
	if result.Width == 0 || result.Height == 0 {
		return nil, fmt.Errorf("no video stream found in %s", path)
	}

	return result, nil
}
